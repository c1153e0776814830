package normalize

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/joshsymonds/fixloop/internal/models"
)

func (n *Normalizer) parsePMD(root *etree.Element) []models.Finding {
	var findings []models.Finding

	// PMD declares a default namespace; unprefixed selectors match it.
	for _, file := range root.SelectElements("file") {
		name := file.SelectAttrValue("name", "")
		key, resolved := n.Resolve(name)

		for _, v := range file.SelectElements("violation") {
			message := strings.TrimSpace(v.Text())
			if message == "" {
				message = "No message"
			}
			priority := v.SelectAttrValue("priority", "")

			findings = append(findings, models.Finding{
				File:         key,
				ReportedPath: name,
				Resolved:     resolved,
				Tool:         models.ToolPMD,
				Line:         atoi(v.SelectAttrValue("beginline", "")),
				Category:     v.SelectAttrValue("ruleset", "Unknown"),
				Priority:     priority,
				Severity:     models.SeverityFromPriority(models.ToolPMD, priority),
				Type:         v.SelectAttrValue("rule", "Unknown"),
				Description:  message,
			})
		}
	}

	return findings
}
