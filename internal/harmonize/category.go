package harmonize

import (
	"strings"

	"github.com/urbanrisk-labs/climate-cli/internal/model"
)

// categoryPrefixes maps the leading code segment to a coarse category.
// Anything unlisted, including sub-national vulnerability variables, is
// tagged other.
var categoryPrefixes = map[string]model.IndicatorCategory{
	"NY": model.CategoryEconomic,
	"NV": model.CategoryEconomic,
	"FP": model.CategoryEconomic,
	"SL": model.CategoryEmployment,
	"SE": model.CategoryEducation,
	"SH": model.CategoryHealth,
	"SP": model.CategoryHealth,
	"SG": model.CategoryRights,
}

// CategoryFor tags an indicator code with its category from the code's
// leading segment.
func CategoryFor(indicatorID string) model.IndicatorCategory {
	prefix, _, ok := strings.Cut(indicatorID, ".")
	if !ok {
		return model.CategoryOther
	}
	if cat, ok := categoryPrefixes[prefix]; ok {
		return cat
	}
	return model.CategoryOther
}
