package email

const (
	subjectTicketOpenedFmt   = "Nueva consulta derivada de +%s"
	subjectTicketAnsweredFmt = "Consulta de +%s respondida"
)
