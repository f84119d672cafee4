package aiqueue

import "fmt"

// DefaultReportTemplate asks for a bug-bounty style write-up. Its five verbs
// receive, in order: title, severity, category, file path and evidence.
const DefaultReportTemplate = `You are a security researcher with 10 years of experience, writing a bug bounty style vulnerability report.
Based on the details below, generate a clear, professional write-up suitable for submission to a bug bounty program.

Vulnerability Details:

* Title: %s
* Severity: %s
* Category: %s
* Affected File / Location: %s
* Evidence: %s

Write the report using this structure:

1. Summary
* Briefly explain what the vulnerability is and where it was found.

2. Description / Technical Details
* Explain the issue clearly and technically.

3. Impact
* Explain what an attacker could achieve by exploiting this issue.

4. Steps to Reproduce (if applicable)
* Provide clear, logical steps that demonstrate how the issue can be observed or verified.

5. Mitigation
* Provide various mitigation strategies.

Guidelines
* Keep the writing concise, clear, and professional.
* Use language and tone appropriate for bug bounty platforms (HackerOne / Bugcrowd style reports).
* Avoid unnecessary verbosity, but ensure the explanation is complete and understandable.
* If something is missing fill the gaps, only if necessary.
`

// RenderPrompt fills template's five verbs from f. An empty template selects
// DefaultReportTemplate.
func RenderPrompt(template string, f Finding) string {
	if template == "" {
		template = DefaultReportTemplate
	}
	return fmt.Sprintf(template, f.Title, f.Severity, f.Category, f.FilePath, f.Evidence)
}
