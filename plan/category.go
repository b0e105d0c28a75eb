package plan

// Category is a plan period granularity.
type Category string

const (
	// Day holds one plan per calendar day.
	Day Category = "Day"

	// Week holds one plan per week, named after the week's Sunday.
	Week Category = "Week"

	// Month holds one plan per calendar month.
	Month Category = "Month"

	// Year holds one plan per calendar year.
	Year Category = "Year"
)

// Categories returns every category in canonical order.
func Categories() []Category {
	return []Category{Day, Week, Month, Year}
}

// String returns the string representation of the Category.
func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case Day, Week, Month, Year:
		return true
	default:
		return false
	}
}

// ParseCategory converts a directory name into a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// TokenPattern is the human readable token grammar, e.g. "YYYYMMDD".
func (c Category) TokenPattern() string {
	switch c {
	case Day, Week:
		return "YYYYMMDD"
	case Month:
		return "YYYYMM"
	case Year:
		return "YYYY"
	default:
		return ""
	}
}

// TokenDigits is the exact number of digits a token of this category has.
func (c Category) TokenDigits() int {
	return len(c.TokenPattern())
}

func (c Category) layout() string {
	switch c {
	case Day, Week:
		return "20060102"
	case Month:
		return "200601"
	case Year:
		return "2006"
	default:
		return ""
	}
}
