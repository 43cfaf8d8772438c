package notification

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const messageSubject = "You've received a secure file"

const textBody = `Hello,

{{.Sender}} sent you a secure file.

File ID: {{.FileID}}
Download page: {{.DownloadPageURL}}

For security reasons the password is not included in this message. Please contact the sender directly.
The file can be downloaded only once.
`

const htmlBody = `<!DOCTYPE html>
<html lang="en">
<body style="font-family: sans-serif; color: #2d3748;">
  <h2>You've received a secure file</h2>
  <p><strong>{{.Sender}}</strong> sent you a secure file.</p>
  <p>File ID: <code>{{.FileID}}</code></p>
  <p><a href="{{.DownloadPageURL}}">Open the download page</a></p>
  <p>For security reasons the password is not included in this message. Please contact the sender directly.
  The file can be downloaded only once.</p>
</body>
</html>
`

var (
	textTemplate = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

type messageData struct {
	Sender          string
	FileID          string
	DownloadPageURL string
}

// message is a rendered notification.
type message struct {
	Subject string
	Text    string
	HTML    string
}

func renderMessage(n Notification, downloadPageURL string) (message, error) {
	data := messageData{
		Sender:          n.Sender(),
		FileID:          n.FileID.String(),
		DownloadPageURL: downloadPageURL,
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return message{}, err
	}
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return message{}, err
	}

	return message{Subject: messageSubject, Text: text.String(), HTML: html.String()}, nil
}
