package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/notify"
)

func registeredMail(r attempt.Record) notify.Message {
	return notify.Message{
		To:      r.Email,
		Subject: "Safety test registration received",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"You are registered for the safety test in class %s. "+
			"Your instructor will email you a link to the test. The link can be opened only once.\n",
			r.FirstName, r.ClassCode),
	}
}

func registrationFailedMail(email, classCode, reason string) notify.Message {
	return notify.Message{
		To:      email,
		Subject: "Safety test registration failed",
		Body: fmt.Sprintf("Hello,\n\n"+
			"We could not register you for the safety test in class %q: %s.\n"+
			"Please check the class code with your instructor and register again.\n",
			classCode, reason),
	}
}

func testLinkMail(r attempt.Record, link string) notify.Message {
	return notify.Message{
		To:      r.Email,
		Subject: "Your safety test link",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Your safety test for class %s is ready:\n\n%s\n\n"+
			"The link can be opened only once, so set aside time to finish the test in one sitting.\n",
			r.FirstName, r.ClassCode, link),
	}
}

func certificateMail(r attempt.Record, percent decimal.Decimal, att notify.Attachment) notify.Message {
	return notify.Message{
		To:      r.Email,
		Subject: "Your safety test certificate",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"Congratulations, you passed the safety test with a score of %s%%. "+
			"Your certificate is attached.\n",
			r.FirstName, percent.String()),
		Attachments: []notify.Attachment{att},
	}
}

func failedMail(r attempt.Record, percent, threshold decimal.Decimal) notify.Message {
	return notify.Message{
		To:      r.Email,
		Subject: "Safety test result",
		Body: fmt.Sprintf("Hello %s,\n\n"+
			"You completed the safety test with a score of %s%%. "+
			"A score of %s%% or above is considered passing.\n"+
			"Please contact your instructor about retaking the test.\n",
			r.FirstName, percent.String(), threshold.String()),
	}
}
