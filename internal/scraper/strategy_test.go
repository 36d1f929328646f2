package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStrategy() Strategy {
	return Strategy{
		Name:             "townwork",
		BaseURL:          "https://townwork.net",
		SearchURLPattern: "https://townwork.net/{area}/list/?fw={keyword}&page={page}",
		AreaCodes:        map[string]string{"東京": "tokyo", "大阪": "osaka"},
		Selectors:        map[string]string{"job_cards": ".card"},
		FilterParams:     map[string]string{"employment_type": "emc"},
		FilterOptions: map[string]map[string]string{
			"employment_type": {"正社員": "03"},
		},
	}
}

func TestBuildSearchURL(t *testing.T) {
	s := testStrategy()

	url, err := s.BuildSearchURL("軽作業", "東京", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://townwork.net/tokyo/list/?fw=%E8%BB%BD%E4%BD%9C%E6%A5%AD&page=2", url)
}

func TestBuildSearchURL_UnknownAreaFallsThrough(t *testing.T) {
	s := testStrategy()

	url, err := s.BuildSearchURL("cafe", "Kyoto", 1, nil)
	require.NoError(t, err)
	assert.Contains(t, url, "/kyoto/")
}

func TestBuildSearchURL_OffsetPagination(t *testing.T) {
	s := testStrategy()
	s.SearchURLPattern = "https://example.com/{area}/?q={keyword}&start={offset}"
	s.PaginationType = "offset"
	s.PaginationIncrement = 20

	url, err := s.BuildSearchURL("cafe", "東京", 3, nil)
	require.NoError(t, err)
	assert.Contains(t, url, "start=40")
}

func TestBuildSearchURL_Filters(t *testing.T) {
	s := testStrategy()

	url, err := s.BuildSearchURL("cafe", "東京", 1, map[string][]string{
		"employment_type": {"正社員"},
		"unsupported":     {"x"},
	})
	require.NoError(t, err)
	assert.Contains(t, url, "emc=03")
	assert.NotContains(t, url, "unsupported")
}

func TestBuildSearchURL_NoPattern(t *testing.T) {
	s := Strategy{Name: "townwork"}
	_, err := s.BuildSearchURL("cafe", "東京", 1, nil)
	assert.Error(t, err)
}

func TestResolveURL(t *testing.T) {
	s := testStrategy()

	assert.Equal(t, "https://townwork.net/detail/clc_1", s.ResolveURL("/detail/clc_1"))
	assert.Equal(t, "https://other.example/x", s.ResolveURL("https://other.example/x"))
	assert.Equal(t, "", s.ResolveURL(""))
}
