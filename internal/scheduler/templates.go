package scheduler

// Template groups in the order queries are offered. Curated lists tend to
// surface the most products per call, value searches the fewest.
const (
	GroupBestLists   = "best_lists"
	GroupAwards      = "awards"
	GroupNewReleases = "new_releases"
	GroupStyle       = "style"
	GroupValue       = "value"
)

// GroupOrder is the fixed priority of template groups.
var GroupOrder = []string{GroupBestLists, GroupAwards, GroupNewReleases, GroupStyle, GroupValue}

// Templates maps category -> group -> query templates. Templates may use
// {year} and {last_year}.
type Templates map[string]map[string][]string

// DefaultTemplates returns the built-in query templates.
func DefaultTemplates() Templates {
	return Templates{
		"whiskey": {
			GroupBestLists:   {"best whiskey {year}", "top 10 scotch whisky {year}", "best bourbon {year}"},
			GroupAwards:      {"whisky awards {year} winners", "san francisco world spirits competition whiskey {last_year}"},
			GroupNewReleases: {"new whiskey releases {year}", "limited edition single malt {year}"},
			GroupStyle:       {"best peated scotch", "best japanese whisky", "best rye whiskey"},
			GroupValue:       {"best whiskey under $50", "best value single malt"},
		},
		"gin": {
			GroupBestLists:   {"best gin {year}", "top 10 london dry gin {year}"},
			GroupAwards:      {"gin awards {year} winners", "world gin awards {last_year}"},
			GroupNewReleases: {"new gin releases {year}"},
			GroupStyle:       {"best navy strength gin", "best old tom gin"},
			GroupValue:       {"best gin under $30"},
		},
		"rum": {
			GroupBestLists:   {"best rum {year}", "top 10 aged rum {year}"},
			GroupAwards:      {"rum awards {year} winners"},
			GroupNewReleases: {"new rum releases {year}"},
			GroupStyle:       {"best agricole rhum", "best jamaican rum"},
			GroupValue:       {"best rum under $40"},
		},
		"port_wine": {
			GroupBestLists:   {"best port wine {year}", "top tawny port {year}"},
			GroupAwards:      {"port wine awards {year}"},
			GroupNewReleases: {"vintage port declaration {last_year}"},
			GroupStyle:       {"best 20 year tawny port", "best late bottled vintage port"},
			GroupValue:       {"best port wine under $30"},
		},
	}
}
