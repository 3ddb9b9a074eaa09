// Package notify sends failure notifications to the console administrators.
package notify

import (
	"fmt"
	"log"

	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EmailNotifier struct {
	apiKey string
	from   *mail.Email
	to     *mail.Email
}

func NewEmailNotifier(apiKey, fromName, fromAddress, toAddress string) *EmailNotifier {
	return &EmailNotifier{
		apiKey: apiKey,
		from:   mail.NewEmail(fromName, fromAddress),
		to:     mail.NewEmail("", toAddress),
	}
}

// JobFailed emails the admin address about a job first observed as failed.
func (n *EmailNotifier) JobFailed(j job.Job) error {
	subject := failureSubject(j)
	body := failureBody(j)
	email := mail.NewSingleEmail(n.from, subject, n.to, body, body)

	client := sendgrid.NewSendClient(n.apiKey)
	response, err := client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("Failure notification sent for job %s (status: %d)", j.ID, response.StatusCode)
	return nil
}

func failureSubject(j job.Job) string {
	if j.FileName != "" {
		return fmt.Sprintf("Ingestion of %q failed", j.FileName)
	}
	return fmt.Sprintf("Job %s failed", j.ID)
}

func failureBody(j job.Job) string {
	body := fmt.Sprintf("Job %s finished with status %s.", j.ID, j.Status)
	if j.Destination != "" {
		body += fmt.Sprintf("\nCollection: %s", j.Destination)
	}
	if j.FileName != "" {
		body += fmt.Sprintf("\nFile: %s", j.FileName)
	}
	if j.Error != "" {
		body += fmt.Sprintf("\nError: %s", j.Error)
	}
	return body
}
