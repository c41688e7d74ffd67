package metrics

import (
	"math"
	"sort"

	"github.com/sam-berry/ecfr-lake/data"
)

// Tolerance is the absolute difference under which two derived values are
// considered equal.
const Tolerance = 0.01

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RVI is total corrections per CFR reference as a percentage, rounded to two
// decimals. It is undefined (nil) for an agency without references.
func RVI(totalCorrections, cfrReferenceCount int) *float64 {
	if cfrReferenceCount <= 0 {
		return nil
	}
	v := Round2(float64(totalCorrections) / float64(cfrReferenceCount) * 100)
	return &v
}

func WithinTolerance(expected, actual float64) bool {
	return math.Abs(expected-actual) < Tolerance
}

// Matches reports whether a correction falls under a CFR reference: the
// titles are equal, and so are chapter and part wherever the reference
// names them.
func Matches(ref *data.CfrReference, c *data.CorrectionRow) bool {
	if ref.Title == nil || c.Title == nil || *ref.Title != *c.Title {
		return false
	}
	if ref.Chapter != nil && (c.Chapter == nil || *c.Chapter != *ref.Chapter) {
		return false
	}
	if ref.Part != nil && (c.Part == nil || *c.Part != *ref.Part) {
		return false
	}
	return true
}

// AgencyMetrics derives one metric per agency, in agency order.
// total_corrections counts each matching correction once even when several
// references of the agency match it.
func AgencyMetrics(
	agencies []*data.AgencyRow,
	refs []*data.CfrReference,
	corrections []*data.CorrectionRow,
) []*data.AgencyMetric {
	byTitle := make(map[int64][]int)
	for i, c := range corrections {
		if c.Title != nil {
			byTitle[*c.Title] = append(byTitle[*c.Title], i)
		}
	}
	refsBySlug := make(map[string][]*data.CfrReference)
	for _, r := range refs {
		refsBySlug[r.AgencySlug] = append(refsBySlug[r.AgencySlug], r)
	}

	out := make([]*data.AgencyMetric, 0, len(agencies))
	for _, a := range agencies {
		matched := make(map[int64]struct{})
		for _, r := range refsBySlug[a.Slug] {
			if r.Title == nil {
				continue
			}
			for _, i := range byTitle[*r.Title] {
				if Matches(r, corrections[i]) {
					matched[corrections[i].Id] = struct{}{}
				}
			}
		}
		out = append(out, &data.AgencyMetric{
			Slug:              a.Slug,
			Name:              a.Name,
			CfrReferenceCount: a.CfrReferenceCount,
			TotalCorrections:  len(matched),
			Rvi:               RVI(len(matched), a.CfrReferenceCount),
		})
	}
	return out
}

// YearlyTrends groups corrections by year, ascending. Corrections without a
// year are left out; AvgLagDays averages only the non-null lags and is nil when
// a year has none.
func YearlyTrends(corrections []*data.CorrectionRow) []*data.YearlyTrend {
	type acc struct {
		count  int
		lagSum int64
		lagN   int
	}
	years := make(map[int64]*acc)
	for _, c := range corrections {
		if c.Year == nil {
			continue
		}
		a, ok := years[*c.Year]
		if !ok {
			a = &acc{}
			years[*c.Year] = a
		}
		a.count++
		if c.LagDays != nil {
			a.lagSum += *c.LagDays
			a.lagN++
		}
	}

	out := make([]*data.YearlyTrend, 0, len(years))
	for year, a := range years {
		t := &data.YearlyTrend{Year: year, CorrectionCount: a.count}
		if a.lagN > 0 {
			avg := float64(a.lagSum) / float64(a.lagN)
			t.AvgLagDays = &avg
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// AverageLag is the mean of all non-null lags, or nil.
func AverageLag(corrections []*data.CorrectionRow) *float64 {
	var sum int64
	n := 0
	for _, c := range corrections {
		if c.LagDays != nil {
			sum += *c.LagDays
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(sum) / float64(n)
	return &avg
}

// TopAgencies returns up to limit agencies with at least one correction,
// most corrections first and ties broken by slug.
func TopAgencies(metrics []*data.AgencyMetric, limit int) []*data.AgencyMetric {
	top := make([]*data.AgencyMetric, 0, len(metrics))
	for _, m := range metrics {
		if m.TotalCorrections > 0 {
			top = append(top, m)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].TotalCorrections != top[j].TotalCorrections {
			return top[i].TotalCorrections > top[j].TotalCorrections
		}
		return top[i].Slug < top[j].Slug
	})
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return top
}
