package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectorsYAML = `
townwork:
  name: タウンワーク
  base_url: https://townwork.net
  search_url_pattern: "https://townwork.net/{area}/list/?fw={keyword}&page={page}"
  pagination:
    type: page
  area_codes:
    東京: tokyo
  selectors:
    job_cards: ".job-lst-main-box"
    title: ".job-lst-main-ttl-txt"
  detail_selectors:
    phone: ".job-detail-tbl-phone"
  filters:
    query_params:
      employment_type: emc
    options:
      employment_type:
        正社員: "03"
broken:
  base_url: https://example.com
  selectors:
    title: ".title"
`

func TestLoadSelectors(t *testing.T) {
	path := writeFile(t, "selectors.yaml", selectorsYAML)

	selectors, err := LoadSelectors(path)
	require.NoError(t, err)
	assert.Contains(t, selectors, "townwork")
}

func TestLoadSelectors_MissingFile(t *testing.T) {
	_, err := LoadSelectors("does/not/exist.yaml")
	assert.Error(t, err)
}

func TestStrategy(t *testing.T) {
	path := writeFile(t, "selectors.yaml", selectorsYAML)
	selectors, err := LoadSelectors(path)
	require.NoError(t, err)

	strategy, err := selectors.Strategy("townwork")
	require.NoError(t, err)
	assert.Equal(t, "townwork", strategy.Name)
	assert.Equal(t, "https://townwork.net", strategy.BaseURL)
	assert.Equal(t, "tokyo", strategy.AreaCodes["東京"])
	assert.Equal(t, ".job-lst-main-box", strategy.Selectors["job_cards"])
	assert.Equal(t, ".job-detail-tbl-phone", strategy.DetailSelectors["phone"])
	assert.Equal(t, "emc", strategy.FilterParams["employment_type"])
	assert.Equal(t, "03", strategy.FilterOptions["employment_type"]["正社員"])
}

func TestStrategy_UnknownSource(t *testing.T) {
	path := writeFile(t, "selectors.yaml", selectorsYAML)
	selectors, err := LoadSelectors(path)
	require.NoError(t, err)

	_, err = selectors.Strategy("baitoru")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestStrategy_MissingJobCards(t *testing.T) {
	path := writeFile(t, "selectors.yaml", selectorsYAML)
	selectors, err := LoadSelectors(path)
	require.NoError(t, err)

	_, err = selectors.Strategy("broken")
	assert.Error(t, err)
}
