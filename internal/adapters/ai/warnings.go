package ai

import "github.com/pharmetric/rxcalc/internal/domain/warning"

// warningPayload is the wire shape the model is asked to emit for warnings.
type warningPayload struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	RelatedNDC string `json:"relatedNdc"`
}

func convertWarnings(payloads []warningPayload) []warning.Warning {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]warning.Warning, 0, len(payloads))
	for _, p := range payloads {
		if p.Message == "" {
			continue
		}
		sev := warning.Severity(p.Severity)
		switch sev {
		case warning.SeverityInfo, warning.SeverityWarning, warning.SeverityError:
		default:
			sev = warning.SeverityInfo
		}
		out = append(out, warning.Warning{
			Type:       warning.Type(p.Type),
			Severity:   sev,
			Message:    p.Message,
			Suggestion: p.Suggestion,
			RelatedNDC: p.RelatedNDC,
		})
	}
	return out
}
