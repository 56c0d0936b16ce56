package scoring

// Display buckets, shown next to the score on product cards.
const (
	DisplaySafe         = "Safe"
	DisplayModerateRisk = "Moderate Risk"
	DisplayHighRisk     = "High Risk"
	DisplayDangerous    = "Dangerous"
)

// Risk levels, a finer five-step scale used in stored analyses and the API.
const (
	RiskSafe      = "Safe"
	RiskLow       = "Low Risk"
	RiskModerate  = "Moderate Risk"
	RiskHigh      = "High Risk"
	RiskDangerous = "Dangerous"
)

// DisplayRisk buckets a harm score at 30/60/80.
func DisplayRisk(harm int) string {
	switch {
	case harm <= 30:
		return DisplaySafe
	case harm <= 60:
		return DisplayModerateRisk
	case harm <= 80:
		return DisplayHighRisk
	default:
		return DisplayDangerous
	}
}

// RiskLevel buckets a harm score at 20/40/60/80. It is kept separate from
// DisplayRisk; the two scales serve different screens.
func RiskLevel(harm int) string {
	switch {
	case harm <= 20:
		return RiskSafe
	case harm <= 40:
		return RiskLow
	case harm <= 60:
		return RiskModerate
	case harm <= 80:
		return RiskHigh
	default:
		return RiskDangerous
	}
}
