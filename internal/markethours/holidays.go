package markethours

// Trade dates on which the CME metals session does not trade at all.
// Early-close days are treated as regular sessions.
var cmeHolidays = []string{
	"2025-01-01", // New Year's Day
	"2025-04-18", // Good Friday
	"2025-12-25", // Christmas
	"2026-01-01", // New Year's Day
	"2026-04-03", // Good Friday
	"2026-12-25", // Christmas
	"2027-01-01", // New Year's Day
	"2027-03-26", // Good Friday
	"2027-12-24", // Christmas (observed)
}
