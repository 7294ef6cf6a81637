package drive

import (
	"fmt"
	"strings"
)

// keywordGroup is one classification branch. Branches are tested in order;
// the first match wins, which matters because raw provider errors can contain
// keywords from several groups at once.
type keywordGroup struct {
	errType     ErrorType
	keywords    []string
	retryable   bool
	suggestions []string
}

var classifyTable = []keywordGroup{
	{
		errType:   ErrorAuthentication,
		keywords:  []string{"unauthorized", "invalid credentials", "401", "token expired", "invalid_grant"},
		retryable: false,
		suggestions: []string{
			"Sign in to Google Drive again.",
			"Reconnect your Google account in settings.",
		},
	},
	{
		errType:   ErrorPermission,
		keywords:  []string{"forbidden", "permission denied", "403", "insufficient permission", "access denied"},
		retryable: false,
		suggestions: []string{
			"Ask the file owner to grant you access.",
			"Check that the file is shared with your account.",
		},
	},
	{
		errType:   ErrorNotFound,
		keywords:  []string{"not found", "404", "no such file", "does not exist"},
		retryable: false,
		suggestions: []string{
			"Check the file name and try again.",
			"Search for the file to find its current location.",
		},
	},
	{
		errType:   ErrorQuota,
		keywords:  []string{"quota", "storage full", "limit exceeded", "rate limit", "429"},
		retryable: false,
		suggestions: []string{
			"Free up storage space in your Drive.",
			"Wait a moment before trying again.",
		},
	},
	{
		errType:   ErrorNetwork,
		keywords:  []string{"network", "timeout", "timed out", "etimedout", "econnreset", "econnrefused", "connection"},
		retryable: true,
		suggestions: []string{
			"Check your internet connection.",
			"Try the request again.",
		},
	},
	{
		errType:   ErrorValidation,
		keywords:  []string{"validation", "invalid", "bad request", "400", "malformed"},
		retryable: false,
		suggestions: []string{
			"Check the request parameters and try again.",
		},
	},
}

// Classify maps a raw provider/agent error onto the stable taxonomy.
// Pure and stateless: it only inspects the lower-cased error text.
func Classify(err error, operation string) *AgentError {
	if err == nil {
		return nil
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "Operation failed"
	}
	lower := strings.ToLower(msg)

	for _, group := range classifyTable {
		for _, kw := range group.keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			out := &AgentError{
				Type:        group.errType,
				Message:     userFacingMessage(group.errType, operation),
				Details:     msg,
				Suggestions: append([]string(nil), group.suggestions...),
				Retryable:   group.retryable,
			}
			out.Normalize()
			return out
		}
	}

	out := &AgentError{
		Type:      ErrorUnknown,
		Message:   userFacingMessage(ErrorUnknown, operation),
		Details:   msg,
		Retryable: true,
		Suggestions: []string{
			"Try the request again.",
			"Rephrase the request if the problem persists.",
		},
	}
	out.Normalize()
	return out
}

func userFacingMessage(t ErrorType, operation string) string {
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "complete the request"
	}
	switch t {
	case ErrorAuthentication:
		return fmt.Sprintf("I couldn't %s because your Google Drive session has expired.", op)
	case ErrorPermission:
		return fmt.Sprintf("I couldn't %s because you don't have permission for that file.", op)
	case ErrorNotFound:
		return fmt.Sprintf("I couldn't %s because the file was not found.", op)
	case ErrorQuota:
		return fmt.Sprintf("I couldn't %s because a storage or rate limit was reached.", op)
	case ErrorNetwork:
		return fmt.Sprintf("I couldn't %s due to a network problem.", op)
	case ErrorValidation:
		return fmt.Sprintf("I couldn't %s because part of the request was invalid.", op)
	default:
		return fmt.Sprintf("Something went wrong while trying to %s.", op)
	}
}
