package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

type Link struct {
	FileName string
	URL      string
}

type ArchiveReadyData struct {
	CourseName   string
	EducatorName string
	StudentName  string
	Comment      string
	Links        []Link
	ExpiresOn    string
}

type WorkViewedData struct {
	CourseName  string
	StudentName string
	ViewedAt    string
}

var templates = template.Must(template.New("").Parse(`
{{define "educator"}}<p>Hello{{with .EducatorName}} {{.}}{{end}},</p>
<p>{{or .StudentName "A student"}} submitted work{{with .CourseName}} for <strong>{{.}}</strong>{{end}}.</p>
{{with .Comment}}<blockquote>{{.}}</blockquote>{{end}}
<ul>{{range .Links}}<li><a href="{{.URL}}">{{.FileName}}</a></li>{{end}}</ul>
{{with .ExpiresOn}}<p>Links are valid until {{.}}.</p>{{end}}{{end}}

{{define "student"}}<p>Hi{{with .StudentName}} {{.}}{{end}},</p>
<p>Your submission{{with .CourseName}} for <strong>{{.}}</strong>{{end}} was received and is ready for review.</p>
<ul>{{range .Links}}<li>{{.FileName}}</li>{{end}}</ul>{{end}}

{{define "viewed"}}<p>Hi{{with .StudentName}} {{.}}{{end}},</p>
<p>Your submission{{with .CourseName}} for <strong>{{.}}</strong>{{end}} was first downloaded on {{.ViewedAt}}.</p>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderEducatorEmail returns the subject and body sent to educators
// once a submission's files are ready to download.
func RenderEducatorEmail(d ArchiveReadyData) (string, string, error) {
	subject := "New submission"
	if d.StudentName != "" {
		subject = "New submission from " + d.StudentName
	}
	body, err := render("educator", d)
	return subject, body, err
}

// RenderStudentEmail lists the received files without download links:
// the links are meant for educators and their first use is reported
// back to the student.
func RenderStudentEmail(d ArchiveReadyData) (string, string, error) {
	body, err := render("student", d)
	return "Your submission was received", body, err
}

func RenderWorkViewedEmail(d WorkViewedData) (string, string, error) {
	body, err := render("viewed", d)
	return "Your submission was viewed", body, err
}
