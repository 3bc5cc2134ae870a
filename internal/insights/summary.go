package insights

import (
	"sort"
	"time"

	"github.com/DeafMist/feedback-radar/internal/models"
	"github.com/DeafMist/feedback-radar/internal/processing"
)

const (
	topProducts = 3
	// complaintTerms bounds Summary.ComplaintTerms.
	complaintTerms = 10
	// MaxCriticalIssues bounds Summary.CriticalIssues.
	MaxCriticalIssues = 10
)

// Summary holds the KPIs computed over a classified batch.
type Summary struct {
	Total          int                     `json:"total"`
	PositiveShare  float64                 `json:"positive_share"`
	NegativeShare  float64                 `json:"negative_share"`
	NeutralShare   float64                 `json:"neutral_share"`
	Errors         int                     `json:"errors"`
	Critical       int                     `json:"critical"`
	Distribution   map[models.Label]int    `json:"distribution"`
	TopProducts    []ProductIssues         `json:"top_products"`
	Regions        []RegionStats           `json:"regions"`
	Channels       []ChannelStats          `json:"channels"`
	Trend          []DailyCount            `json:"trend"`
	CriticalIssues []models.FeedbackRecord `json:"critical_issues"`
	ComplaintTerms []string                `json:"complaint_terms"`
}

// ProductIssues is a product ranked by critical feedback.
type ProductIssues struct {
	Product  string `json:"product"`
	Critical int    `json:"critical"`
}

// RegionStats summarizes one region.
type RegionStats struct {
	Region        string  `json:"region"`
	Total         int     `json:"total"`
	PositiveShare float64 `json:"positive_share"`
	MeanScore     float64 `json:"mean_score"`
	Critical      int     `json:"critical"`
}

// ChannelStats summarizes one channel. MeanResolutionMinutes is nil when no record in
// the channel carries a resolution time.
type ChannelStats struct {
	Channel               string                   `json:"channel"`
	Total                 int                      `json:"total"`
	Shares                map[models.Label]float64 `json:"shares"`
	MeanResolutionMinutes *float64                 `json:"mean_resolution_minutes,omitempty"`
}

// DailyCount is the label distribution of one UTC day.
type DailyCount struct {
	Day    string               `json:"day"`
	Counts map[models.Label]int `json:"counts"`
}

type regionAcc struct {
	total, positive, critical int
	scoreSum                  float64
}

type channelAcc struct {
	total           int
	labels          map[models.Label]int
	resolutionSum   float64
	resolutionCount int
}

// Summarize computes KPIs over records. Groups are listed in order of first appearance
// unless stated otherwise; an empty batch yields zero shares.
func Summarize(records []models.FeedbackRecord) Summary {
	s := Summary{
		Total:          len(records),
		Distribution:   map[models.Label]int{},
		TopProducts:    []ProductIssues{},
		Regions:        []RegionStats{},
		Channels:       []ChannelStats{},
		Trend:          []DailyCount{},
		CriticalIssues: []models.FeedbackRecord{},
		ComplaintTerms: []string{},
	}
	if len(records) == 0 {
		return s
	}

	var (
		productOrder []string
		productCrit  = map[string]int{}
		regionOrder  []string
		regions      = map[string]*regionAcc{}
		channelOrder []string
		channels     = map[string]*channelAcc{}
		days         = map[string]map[models.Label]int{}
	)

	for _, r := range records {
		s.Distribution[r.Sentiment]++
		if r.Sentiment == models.LabelError {
			s.Errors++
		}
		if r.IsNegative {
			s.Critical++
			s.CriticalIssues = append(s.CriticalIssues, r)
		}

		if _, ok := productCrit[r.Product]; !ok {
			productOrder = append(productOrder, r.Product)
			productCrit[r.Product] = 0
		}
		if r.IsNegative {
			productCrit[r.Product]++
		}

		ra, ok := regions[r.Region]
		if !ok {
			ra = &regionAcc{}
			regions[r.Region] = ra
			regionOrder = append(regionOrder, r.Region)
		}
		ra.total++
		ra.scoreSum += r.Score
		if r.Sentiment == models.LabelPositive {
			ra.positive++
		}
		if r.IsNegative {
			ra.critical++
		}

		ca, ok := channels[r.Channel]
		if !ok {
			ca = &channelAcc{labels: map[models.Label]int{}}
			channels[r.Channel] = ca
			channelOrder = append(channelOrder, r.Channel)
		}
		ca.total++
		ca.labels[r.Sentiment]++
		if r.ResolutionMinutes != nil {
			ca.resolutionSum += float64(*r.ResolutionMinutes)
			ca.resolutionCount++
		}

		day := r.Timestamp.UTC().Format(time.DateOnly)
		if days[day] == nil {
			days[day] = map[models.Label]int{}
		}
		days[day][r.Sentiment]++
	}

	n := float64(len(records))
	s.PositiveShare = float64(s.Distribution[models.LabelPositive]) / n
	s.NegativeShare = float64(s.Distribution[models.LabelNegative]) / n
	s.NeutralShare = float64(s.Distribution[models.LabelNeutral]) / n

	for _, p := range productOrder {
		if productCrit[p] > 0 {
			s.TopProducts = append(s.TopProducts, ProductIssues{Product: p, Critical: productCrit[p]})
		}
	}
	sort.SliceStable(s.TopProducts, func(i, j int) bool {
		return s.TopProducts[i].Critical > s.TopProducts[j].Critical
	})
	if len(s.TopProducts) > topProducts {
		s.TopProducts = s.TopProducts[:topProducts]
	}

	for _, name := range regionOrder {
		ra := regions[name]
		s.Regions = append(s.Regions, RegionStats{
			Region:        name,
			Total:         ra.total,
			PositiveShare: float64(ra.positive) / float64(ra.total),
			MeanScore:     ra.scoreSum / float64(ra.total),
			Critical:      ra.critical,
		})
	}
	sort.SliceStable(s.Regions, func(i, j int) bool {
		return s.Regions[i].Critical > s.Regions[j].Critical
	})

	for _, name := range channelOrder {
		ca := channels[name]
		cs := ChannelStats{Channel: name, Total: ca.total, Shares: map[models.Label]float64{}}
		for label, c := range ca.labels {
			cs.Shares[label] = float64(c) / float64(ca.total)
		}
		if ca.resolutionCount > 0 {
			mean := ca.resolutionSum / float64(ca.resolutionCount)
			cs.MeanResolutionMinutes = &mean
		}
		s.Channels = append(s.Channels, cs)
	}

	for day, counts := range days {
		s.Trend = append(s.Trend, DailyCount{Day: day, Counts: counts})
	}
	sort.Slice(s.Trend, func(i, j int) bool {
		return s.Trend[i].Day < s.Trend[j].Day
	})

	texts := make([]string, 0, len(s.CriticalIssues))
	for _, r := range s.CriticalIssues {
		texts = append(texts, r.Text)
	}
	if terms := processing.TopTerms(texts, complaintTerms, 3); terms != nil {
		s.ComplaintTerms = terms
	}

	sort.SliceStable(s.CriticalIssues, func(i, j int) bool {
		return s.CriticalIssues[i].Score > s.CriticalIssues[j].Score
	})
	if len(s.CriticalIssues) > MaxCriticalIssues {
		s.CriticalIssues = s.CriticalIssues[:MaxCriticalIssues]
	}

	return s
}
