package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasQueryData(t *testing.T) {
	assert.False(t, HasQueryData(""))
	assert.False(t, HasQueryData("application/x-www-form-urlencoded,"))
	assert.False(t, HasQueryData("text/plain,query=1"))
	assert.True(t, HasQueryData("application/x-www-form-urlencoded,query=1"))
}

func TestGetQueryFieldAbsentReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", GetQueryField("", "query"))
	assert.Equal(t, "", GetQueryField("application/x-www-form-urlencoded,other=1", "query"))
}

func TestSetQueryFieldAppendsAlphabetically(t *testing.T) {
	data := SetQueryField("", "query", "up(rate)")
	assert.Equal(t, "application/x-www-form-urlencoded,query=up%28rate%29", data)
	assert.Equal(t, "up(rate)", GetQueryField(data, "query"))

	data = SetQueryField(data, "instant", "true")
	assert.Equal(t, "application/x-www-form-urlencoded,instant=true&query=up%28rate%29", data)
}

func TestSetQueryFieldReplacesExistingValue(t *testing.T) {
	data := SetQueryField("", "query", "first")
	data = SetQueryField(data, "query", "second")
	assert.Equal(t, "second", GetQueryField(data, "query"))
}

func TestSetQueryFieldConvergesRegardlessOfApplicationOrder(t *testing.T) {
	a := SetQueryField(SetQueryField("", "query", "up"), "instant", "true")
	b := SetQueryField(SetQueryField("", "instant", "true"), "query", "up")
	assert.Equal(t, a, b)
}

func TestUnsetQueryFieldRemovesField(t *testing.T) {
	data := SetQueryField(SetQueryField("", "query", "up"), "instant", "true")
	data = UnsetQueryField(data, "instant")
	assert.Equal(t, "", GetQueryField(data, "instant"))
	assert.Equal(t, "up", GetQueryField(data, "query"))
}

func TestUnsetQueryFieldOnAbsentFieldIsNoOp(t *testing.T) {
	data := SetQueryField("", "query", "up")
	assert.Equal(t, data, UnsetQueryField(data, "missing"))
}

func TestQueryDataRoundTripsSpecialCharacters(t *testing.T) {
	data := SetQueryField("", "query", "sum(rate(http_requests[5m])) & friends")
	assert.Equal(t, "sum(rate(http_requests[5m])) & friends", GetQueryField(data, "query"))
}
