package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"support_router_backend/internal/adapters/storage"
)

// ObjectArchiver stores documents as JSON objects under qa/YYYY/MM/<id>.json.
type ObjectArchiver struct {
	storage storage.StorageService
	bucket  string
}

func NewObjectArchiver(svc storage.StorageService, bucket string) *ObjectArchiver {
	return &ObjectArchiver{storage: svc, bucket: bucket}
}

func (a *ObjectArchiver) Archive(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := ObjectKey(doc)
	return a.storage.PutObject(ctx, a.bucket, key, "application/json", bytes.NewReader(body), int64(len(body)))
}

// ObjectKey returns the archive location of doc.
func ObjectKey(doc Document) string {
	return fmt.Sprintf("qa/%04d/%02d/%s.json", doc.DateAdded.Year(), int(doc.DateAdded.Month()), doc.ID)
}
