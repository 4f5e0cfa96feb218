package notify

import (
	"fmt"
	"strings"
	"time"

	"librarian/internal/catalog"
)

const dateLayout = "2006-01-02"

// Reminder builds the overdue email for a book. The output depends only on
// its arguments.
func Reminder(b catalog.Book, p catalog.Patron, asOf time.Time) (subject, body string) {
	due := ""
	days := 0
	if b.DueDate != nil {
		due = b.DueDate.Format(dateLayout)
		days = int(catalog.DateOf(asOf).Sub(catalog.DateOf(*b.DueDate)).Hours() / 24)
	}

	subject = fmt.Sprintf("Overdue book reminder: %s", b.Title)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello %s,\n\n", p.Username)
	fmt.Fprintf(&sb, "The book \"%s\" by %s was due on %s", b.Title, b.Author, due)
	if days > 0 {
		fmt.Fprintf(&sb, " and is now %d day(s) overdue", days)
	}
	sb.WriteString(".\nPlease return it to the library as soon as possible.\n\nThank you,\nThe Library\n")

	return subject, sb.String()
}

// ReminderNotice is the in-app message for an overdue book.
func ReminderNotice(b catalog.Book) string {
	if b.DueDate == nil {
		return fmt.Sprintf("The book \"%s\" is overdue. Please return it.", b.Title)
	}
	return fmt.Sprintf("The book \"%s\" was due on %s. Please return it.", b.Title, b.DueDate.Format(dateLayout))
}

// Heartbeat builds the transport test message.
func Heartbeat(at time.Time) (subject, body string) {
	stamp := at.UTC().Format(time.RFC3339)
	return "Library mail test", fmt.Sprintf("Mail transport check sent at %s.\n", stamp)
}

// RecipientFor returns the patron's email, or username@domain when unset.
func RecipientFor(p catalog.Patron, domain string) string {
	if p.Email != "" {
		return p.Email
	}
	return fmt.Sprintf("%s@%s", p.Username, domain)
}
