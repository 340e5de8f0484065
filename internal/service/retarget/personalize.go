package retarget

import (
	"strconv"
	"strings"
	"time"

	"github.com/regabilling/retarget/internal/domain"
)

// Personalize substitutes prospect tokens into a template body. Substitution
// is literal: unknown tokens stay verbatim, an empty body yields "".
//
// Supported tokens: {{name}}, {{firstName}}, {{email}}, {{daysSinceSignup}},
// {{signupDate}}.
func Personalize(body string, p *domain.Prospect, now time.Time) string {
	if body == "" {
		return ""
	}

	days := int(now.Sub(p.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}

	r := strings.NewReplacer(
		"{{name}}", p.Name,
		"{{firstName}}", p.FirstName(),
		"{{email}}", p.Email,
		"{{daysSinceSignup}}", strconv.Itoa(days),
		"{{signupDate}}", p.CreatedAt.Format("2006-01-02"),
	)
	return r.Replace(body)
}
