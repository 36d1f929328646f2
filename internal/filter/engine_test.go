package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-townwork-crawler/internal/models"
)

func job(title string) models.StoredJob {
	return models.StoredJob{Record: models.Record{
		Title:   title,
		Company: "株式会社テスト",
		Source:  "townwork",
	}}
}

func TestFilter_DuplicatePhoneCollapse(t *testing.T) {
	a := job("求人A")
	a.PhoneNormalized = "0312345678"
	b := job("求人B")
	b.PhoneNormalized = "0312345678"
	c := job("求人C")
	c.PhoneNormalized = "0698765432"

	result := Filter([]models.StoredJob{a, b, c}, DefaultRules())

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 1, result.DuplicatePhoneCount)
	require.Len(t, result.Kept, 2)
	// first occurrence of each number survives, in original order
	assert.Equal(t, "求人A", result.Kept[0].Title)
	assert.Equal(t, "求人C", result.Kept[1].Title)

	require.Len(t, result.Excluded, 1)
	assert.Equal(t, "電話番号重複", result.Excluded[0].Reason)
}

func TestFilter_EmptyPhonesNeverCollapse(t *testing.T) {
	a := job("求人A")
	b := job("求人B")

	result := Filter([]models.StoredJob{a, b}, DefaultRules())
	assert.Len(t, result.Kept, 2)
	assert.Zero(t, result.DuplicatePhoneCount)
}

func TestFilter_LargeCompany(t *testing.T) {
	count := 1500
	big := job("大企業の求人")
	big.EmployeeCount = &count

	small := 200
	ok := job("中小企業の求人")
	ok.EmployeeCount = &small

	result := Filter([]models.StoredJob{big, ok}, DefaultRules())

	assert.Equal(t, 1, result.LargeCompanyCount)
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, "従業員数1500人", result.Excluded[0].Reason)
	assert.Len(t, result.Kept, 1)
}

func TestFilter_Keyword(t *testing.T) {
	j := job("スタッフ募集")
	j.Company = "テスト人材派遣株式会社"

	result := Filter([]models.StoredJob{j}, DefaultRules())

	assert.Equal(t, 1, result.KeywordCount)
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, "除外キーワード（人材派遣）", result.Excluded[0].Reason)
}

func TestFilter_ExtraKeywords(t *testing.T) {
	j := job("夜間警備スタッフ")
	j.BusinessDescription = "ビル警備業"

	rules := DefaultRules()
	rules.ExtraKeywords = []string{"警備"}

	result := Filter([]models.StoredJob{j}, rules)
	assert.Equal(t, "除外キーワード（警備）", result.Excluded[0].Reason)
}

func TestFilter_Industry(t *testing.T) {
	j := job("ホールスタッフ")
	j.BusinessDescription = "パチンコ店の運営"

	result := Filter([]models.StoredJob{j}, DefaultRules())

	assert.Equal(t, 1, result.IndustryCount)
	assert.Equal(t, "除外業界（パチンコ）", result.Excluded[0].Reason)
}

func TestFilter_Location(t *testing.T) {
	j := job("リゾートバイト")
	j.Location = "沖縄県那覇市"

	result := Filter([]models.StoredJob{j}, DefaultRules())

	assert.Equal(t, 1, result.LocationCount)
	assert.Equal(t, "除外勤務地（沖縄）", result.Excluded[0].Reason)
}

func TestFilter_PhonePrefix(t *testing.T) {
	j := job("コールセンター")
	j.PhoneNormalized = "0120123456"

	result := Filter([]models.StoredJob{j}, DefaultRules())

	assert.Equal(t, 1, result.PhonePrefixCount)
	assert.Equal(t, "除外電話番号（0120）", result.Excluded[0].Reason)
}

// one record matching several rules is counted exactly once, against the
// earliest rule in the fixed order.
func TestFilter_FirstMatchWins(t *testing.T) {
	count := 5000
	j := job("スタッフ募集")
	j.EmployeeCount = &count
	j.Company = "人材派遣の大手"
	j.PhoneNormalized = "0120999888"

	result := Filter([]models.StoredJob{j}, DefaultRules())

	assert.Equal(t, 1, result.LargeCompanyCount)
	assert.Zero(t, result.KeywordCount)
	assert.Zero(t, result.PhonePrefixCount)
	assert.Equal(t, 1, result.ExcludedCount())
}

func TestFilter_DisabledRulesAreSkipped(t *testing.T) {
	j := job("ホールスタッフ")
	j.BusinessDescription = "パチンコ店の運営"
	j.PhoneNormalized = "0120123456"

	rules := DefaultRules()
	rules.Industry = false
	rules.PhonePrefix = false

	result := Filter([]models.StoredJob{j}, rules)
	assert.Len(t, result.Kept, 1)
	assert.Zero(t, result.ExcludedCount())
}

func TestFilter_ThresholdBoundary(t *testing.T) {
	atThreshold := 1001
	below := 1000

	a := job("ちょうど閾値")
	a.EmployeeCount = &atThreshold
	b := job("閾値未満")
	b.EmployeeCount = &below

	result := Filter([]models.StoredJob{a, b}, DefaultRules())

	assert.Equal(t, 1, result.LargeCompanyCount)
	require.Len(t, result.Kept, 1)
	assert.Equal(t, "閾値未満", result.Kept[0].Title)
}

func TestFilter_KeptRecordsUntouched(t *testing.T) {
	j := job("普通の求人")

	result := Filter([]models.StoredJob{j}, DefaultRules())
	require.Len(t, result.Kept, 1)
	assert.False(t, result.Kept[0].IsFiltered)
	assert.Empty(t, result.Kept[0].FilterReason)
}

func TestSummary(t *testing.T) {
	j := job("ホールスタッフ")
	j.BusinessDescription = "パチンコ店の運営"

	result := Filter([]models.StoredJob{j}, DefaultRules())
	summary := result.Summary()
	assert.Contains(t, summary, "対象求人: 1件")
	assert.Contains(t, summary, "除外業界: 1件")
	assert.Contains(t, summary, "残り: 0件")
}
