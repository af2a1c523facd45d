package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/appunni/budgeauto/internal/logger"
)

// UnknownAccount is the sentinel used when no allowed account matches.
const UnknownAccount = "Unknown Account"

// hdfcSavingsAccount is routed deterministically: savings statements arrive
// with an Anything_DDMMYYYY_Anything.pdf filename and an email subject
// naming the bank and the word "statement".
const hdfcSavingsAccount = "HDFC Savings"

var hdfcFilenamePattern = regexp.MustCompile(`^.+_\d{8}_.+\.pdf$`)

// resolveAccount attributes a source account to a document. The
// deterministic rule runs first so the common savings statement never costs
// a model call; everything else goes through the account matcher and falls
// back to UnknownAccount.
func (e *Extractor) resolveAccount(ctx context.Context, filename, subject string) string {
	log := logger.FromContext(ctx)

	subjectLower := strings.ToLower(subject)
	if containsString(e.AccountNames, hdfcSavingsAccount) &&
		hdfcFilenamePattern.MatchString(filename) &&
		strings.Contains(subjectLower, "hdfc") && strings.Contains(subjectLower, "statement") {
		log.Info().Str("filename", filename).Str("account", hdfcSavingsAccount).Msg("Rule matched filename pattern and subject keywords")
		return hdfcSavingsAccount
	}

	if e.Accounts == nil || len(e.AccountNames) == 0 {
		log.Warn().Str("filename", filename).Msg("No account matcher or allowed names configured, using unknown account")
		return UnknownAccount
	}

	matched, err := e.Accounts.MatchAccount(ctx, filename, e.AccountNames)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("Account matching failed, using unknown account")
		return UnknownAccount
	}
	if !containsString(e.AccountNames, matched) {
		log.Warn().Str("filename", filename).Str("response", matched).Msg("Account matcher returned a name outside the allowed list, using unknown account")
		return UnknownAccount
	}

	log.Info().Str("filename", filename).Str("account", matched).Msg("Mapped filename to account")
	return matched
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
