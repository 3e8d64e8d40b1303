package advisory

import (
	"fmt"
	"strings"
	"time"

	"github.com/legalsift/legalsift/internal/contract"
)

// ConfidenceBand maps a classifier confidence to a report band label.
func ConfidenceBand(confidence float32) string {
	switch {
	case confidence > 0.8:
		return "HIGH"
	case confidence > 0.6:
		return "MEDIUM"
	default:
		return "ELEVATED"
	}
}

// RenderReport picks the report variant: a fixed safe-contract report when no
// advisories exist, a risky report otherwise.
func RenderReport(advisories []contract.Advisory, totalChunks int, now time.Time) string {
	if len(advisories) == 0 {
		return renderSafeReport(totalChunks, now)
	}
	return renderRiskyReport(advisories, now)
}

func renderSafeReport(totalChunks int, now time.Time) string {
	return fmt.Sprintf(`## CONTRACT RISK ANALYSIS REPORT

**Generated:** %s
**Total Chunks Analyzed:** %d

---

## ✅ RESULT: SAFE CONTRACT

### 🎉 Good News!

No significant risks detected in this contract.

### What This Means:

- **No unilateral termination clauses** - Termination terms appear balanced
- **No unlimited liability provisions** - Liability exposure is capped appropriately
- **No excessive non-compete restrictions** - Restrictions are reasonable in scope

---

### ⚖️ Disclaimer

This is an AI-generated analysis based on automated risk detection models. While the system has high accuracy in identifying common legal risks, it is recommended to consult with a qualified legal professional for a complete review of this contract. AI analysis complements but does not replace professional legal advice.

---
`, now.Format("January 2, 2006 at 3:04 PM"), totalChunks)
}

func renderRiskyReport(advisories []contract.Advisory, now time.Time) string {
	var b strings.Builder

	b.WriteString("## CONTRACT RISK ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "**Generated:** %s\n", now.Format("January 2, 2006 at 3:04 PM"))
	fmt.Fprintf(&b, "**Total Risks Found:** %d\n", len(advisories))
	b.WriteString("\n---\n\n")

	b.WriteString("## 🚨 IDENTIFIED RISKS\n\n")
	fmt.Fprintf(&b, "This contract contains **%d significant risk(s)** that require attention:\n\n", len(advisories))
	for i, adv := range advisories {
		if adv.Degraded() {
			continue
		}
		fmt.Fprintf(&b, "**%d. %s** [%s CONFIDENCE: %.1f%%]\n",
			i+1, adv.RiskType, ConfidenceBand(adv.Confidence), adv.Confidence*100)
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## 📋 DETAILED RISK ANALYSIS\n\n")
	for i, adv := range advisories {
		fmt.Fprintf(&b, "### Risk #%d: %s\n\n", i+1, adv.RiskType)
		if adv.Degraded() {
			fmt.Fprintf(&b, "⚠️ **Analysis Status:** %s\n\n---\n\n", adv.Err)
			continue
		}

		fmt.Fprintf(&b, "**Confidence Level:** %.1f%%\n", adv.Confidence*100)
		fmt.Fprintf(&b, "**Reference ID:** %d\n\n", adv.ChunkID)

		b.WriteString("#### 📄 Original Risky Clause\n\n```\n")
		b.WriteString(adv.Clause)
		b.WriteString("\n```\n\n")

		b.WriteString("#### 🔍 Detailed Analysis\n\n")
		b.WriteString(bulletize(adv.Analysis))
		b.WriteString("\n\n---\n\n")
	}

	b.WriteString("## ⚖️ Important Disclaimer\n\n")
	b.WriteString("**This is an AI-generated legal analysis.** While the system has been trained on extensive legal documentation and achieves high accuracy in identifying common contract risks, it should not be considered a substitute for professional legal counsel.\n\n")
	b.WriteString("### Recommendations:\n")
	b.WriteString("• Review with Legal Professional - Consult with a qualified attorney licensed in your jurisdiction\n")
	b.WriteString("• Negotiate Key Terms - Use the identified risks as a starting point for negotiations\n")
	b.WriteString("• Verify Compliance - Ensure all recommendations comply with applicable laws and regulations\n")
	b.WriteString("• Consider Context - This analysis is automated and may not account for specific business relationships or industry practices\n")
	b.WriteString("\n---\n")
	fmt.Fprintf(&b, "**Report Generated:** %s UTC", now.UTC().Format("January 2, 2006 at 3:04 PM"))

	return b.String()
}

// bulletize normalizes model output so free-standing sentences render as
// bullet points while numbered items, headers, and existing bullets pass
// through unchanged.
func bulletize(analysis string) string {
	lines := strings.Split(strings.TrimSpace(analysis), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			out = append(out, line)
		case hasListPrefix(trimmed) || strings.Contains(line, "**"):
			out = append(out, line)
		case !strings.HasPrefix(line, " "):
			out = append(out, "• "+trimmed)
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func hasListPrefix(s string) bool {
	for _, p := range []string{"1.", "2.", "3.", "4.", "5.", "•", "-"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
