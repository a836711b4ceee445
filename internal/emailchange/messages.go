package emailchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/pucc/slapshot/internal/mail"
)

// supportRequestMessage is the approval request mailed to the fixed support
// address. It carries both one-time links and the full request context.
func supportRequestMessage(supportEmail string, req *Request, approveURL, denyURL string) mail.Message {
	lines := []string{
		"An account email change was requested and needs a decision.",
		"",
		fmt.Sprintf("Current email:   %s", req.CurrentEmail),
		fmt.Sprintf("Requested email: %s", req.RequestedEmail),
		fmt.Sprintf("Requested from:  %s", req.RequestIP),
		fmt.Sprintf("Requested at:    %s", req.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("Expires at:      %s", req.ExpiresAt.Format(time.RFC3339)),
	}
	if req.Reason != "" {
		lines = append(lines, "", "Reason given:", req.Reason)
	}
	lines = append(lines,
		"",
		"Each link works exactly once; the first one used settles the request.",
		"",
		"Approve: "+approveURL,
		"Deny:    "+denyURL,
	)

	return mail.Message{
		To:      supportEmail,
		Subject: fmt.Sprintf("Email change request: %s -> %s", req.CurrentEmail, req.RequestedEmail),
		Body:    strings.Join(lines, "\r\n"),
		ReplyTo: req.CurrentEmail,
	}
}

// approvedMessages notifies both the old and the new address after approval.
func approvedMessages(outcome *Outcome) []mail.Message {
	oldBody := strings.Join([]string{
		"The email address on your Slapshot Snapshot account has been changed",
		fmt.Sprintf("from %s to %s.", outcome.CurrentEmail, outcome.RequestedEmail),
		"",
		"If you did not request this change, contact support immediately.",
	}, "\r\n")

	newBody := strings.Join([]string{
		"This address is now the login email for your Slapshot Snapshot account.",
		"",
		"No further action is needed.",
	}, "\r\n")

	return []mail.Message{
		{To: outcome.CurrentEmail, Subject: "Your account email was changed", Body: oldBody},
		{To: outcome.RequestedEmail, Subject: "Your account email was changed", Body: newBody},
	}
}

// deniedMessage notifies the current address only.
func deniedMessage(outcome *Outcome) mail.Message {
	body := strings.Join([]string{
		fmt.Sprintf("Your request to change your account email to %s was denied.", outcome.RequestedEmail),
		"Your login email is unchanged.",
		"",
		"Reply to this message if you believe this is a mistake.",
	}, "\r\n")

	return mail.Message{
		To:      outcome.CurrentEmail,
		Subject: "Your email change request was denied",
		Body:    body,
	}
}
