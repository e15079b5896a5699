package analysis

import (
	"fmt"

	"github.com/jgbdesk/factorcurve/internal/factor"
)

// ComponentSummary describes one principal component in an analysis
// response.
type ComponentSummary struct {
	PCNumber                int       `json:"pc_number"`
	Label                   string    `json:"label"`
	Eigenvalue              float64   `json:"eigenvalue"`
	ExplainedVarianceRatio  float64   `json:"explained_variance_ratio"`
	CumulativeVarianceRatio float64   `json:"cumulative_variance_ratio"`
	Loadings                []float64 `json:"loadings"`
}

// DateRange bounds the valid dates of a model, inclusive.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Parameters echoes the resolved request parameters plus the coverage the
// window actually achieved.
type Parameters struct {
	LookbackDays    int                  `json:"lookback_days"`
	NComponents     int                  `json:"n_components"`
	ActualEndDate   string               `json:"actual_end_date"`
	DateRange       DateRange            `json:"date_range"`
	ValidDatesCount int                  `json:"valid_dates_count"`
	DroppedDates    []factor.DroppedDate `json:"dropped_dates,omitempty"`
}

// AnalysisResponse is the full-analysis payload: the model summary, the
// recent score time series, and a reconstruction for the latest date only.
// Historical reconstructions are fetched per date to keep this light.
type AnalysisResponse struct {
	Components           []ComponentSummary      `json:"components"`
	Scores               []map[string]any        `json:"scores"`
	Maturities           []float64               `json:"maturities"`
	MeanVector           []float64               `json:"mean_vector"`
	Parameters           Parameters              `json:"parameters"`
	ReconstructionDates  []string                `json:"reconstruction_dates"`
	LatestReconstruction *ReconstructionResponse `json:"latest_reconstruction"`
}

// ReconstructionResponse is a ReconstructionResult tagged with its date.
type ReconstructionResponse struct {
	Date       string               `json:"date"`
	Data       []BondReconstruction `json:"data"`
	Statistics ErrorStats           `json:"statistics"`
}

// ParamRange describes one tunable request parameter for the UI.
type ParamRange struct {
	Min         int      `json:"min"`
	Max         int      `json:"max"`
	Default     int      `json:"default"`
	Description string   `json:"description"`
	Labels      []string `json:"labels,omitempty"`
}

// ParameterRanges lists the allowed request parameters.
type ParameterRanges struct {
	Days       ParamRange `json:"days"`
	Components ParamRange `json:"components"`
}

// Parameters returns the allowed ranges and principal-component labels.
func (a *Analyzer) Parameters() ParameterRanges {
	labels := make([]string, 0, 5)
	for pc := 1; pc <= 5; pc++ {
		labels = append(labels, PCLabel(pc))
	}
	return ParameterRanges{
		Days: ParamRange{
			Min:         factor.MinLookbackDays,
			Max:         factor.MaxLookbackDays,
			Default:     100,
			Description: "business days in the model window",
		},
		Components: ParamRange{
			Min:         1,
			Max:         factor.MaxComponents,
			Default:     3,
			Description: "number of principal components",
			Labels:      labels,
		},
	}
}

func buildAnalysisResponse(model *factor.Model, latest *ReconstructionResult, scoreSeriesLimit int) *AnalysisResponse {
	components := make([]ComponentSummary, model.NComponents)
	for i := 0; i < model.NComponents; i++ {
		components[i] = ComponentSummary{
			PCNumber:                i + 1,
			Label:                   PCLabel(i + 1),
			Eigenvalue:              model.Eigenvalues[i],
			ExplainedVarianceRatio:  model.ExplainedVarianceRatio[i],
			CumulativeVarianceRatio: model.CumulativeVarianceRatio[i],
			Loadings:                model.Components[i],
		}
	}

	scoreCount := len(model.ValidDates)
	if scoreSeriesLimit > 0 && scoreCount > scoreSeriesLimit {
		scoreCount = scoreSeriesLimit
	}
	scores := make([]map[string]any, scoreCount)
	for i := 0; i < scoreCount; i++ {
		point := map[string]any{"date": model.ValidDates[i].Format(dateLayout)}
		for j, s := range model.Scores[i] {
			point[fmt.Sprintf("pc%d", j+1)] = s
		}
		scores[i] = point
	}

	reconDates := make([]string, len(model.ValidDates))
	for i, d := range model.ValidDates {
		reconDates[i] = d.Format(dateLayout)
	}

	return &AnalysisResponse{
		Components: components,
		Scores:     scores,
		Maturities: model.Grid,
		MeanVector: model.MeanVector,
		Parameters: Parameters{
			LookbackDays:    model.LookbackDays,
			NComponents:     model.NComponents,
			ActualEndDate:   model.ValidDates[0].Format(dateLayout),
			DateRange:       DateRange{Start: reconDates[len(reconDates)-1], End: reconDates[0]},
			ValidDatesCount: len(model.ValidDates),
			DroppedDates:    model.Dropped,
		},
		ReconstructionDates:  reconDates,
		LatestReconstruction: reconstructionResponse(latest),
	}
}

func reconstructionResponse(r *ReconstructionResult) *ReconstructionResponse {
	return &ReconstructionResponse{
		Date:       r.Date.Format(dateLayout),
		Data:       r.Bonds,
		Statistics: r.Statistics,
	}
}
