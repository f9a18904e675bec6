package confirmation

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

type Page struct {
	Title   string
	Heading string
	Message string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>body{font-family:Arial,sans-serif;max-width:560px;margin:64px auto;padding:0 16px;color:#222}h1{font-size:22px}</style>
</head>
<body>
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

const timestampLayout = "2006-01-02 15:04 MST"

func formatTimestamp(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "an earlier date"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}

func ConfirmedPage(folio string, installments int) Page {
	target := "purchase order " + folio
	if installments == 1 {
		target += " (1 installment)"
	} else if installments > 1 {
		target += fmt.Sprintf(" (%d installments)", installments)
	}
	return Page{
		Title:   "Delivery confirmed",
		Heading: "Confirmation received",
		Message: fmt.Sprintf("Thank you. Your delivery confirmation for %s has been recorded.", target),
	}
}

func AlreadyConfirmedPage(confirmedAt *time.Time, loc *time.Location) Page {
	return Page{
		Title:   "Delivery already confirmed",
		Heading: "Already confirmed",
		Message: fmt.Sprintf("This delivery was already confirmed on %s. No further action is needed.", formatTimestamp(confirmedAt, loc)),
	}
}

func NotFoundPage() Page {
	return Page{
		Title:   "Purchase order not found",
		Heading: "Not found",
		Message: "We could not find this purchase order. Please contact our purchasing team.",
	}
}

func ErrorPage() Page {
	return Page{
		Title:   "Service unavailable",
		Heading: "Something went wrong",
		Message: "We could not process your confirmation right now. Please try again later.",
	}
}

func RenderPage(p Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
