package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeJSON(t *testing.T) {
	e := NewEngine()
	res, err := e.Analyze([][]byte{
		[]byte(`{"id":1,"name":"a"}`),
		[]byte(`{"id":2,"email":"x@y.z"}`),
	}, "application/json; charset=utf-8")
	require.NoError(t, err)

	assert.Equal(t, "json", res.ContentCategory)
	assert.Equal(t, 2, res.SampleCount)
	assert.False(t, res.Skipped)

	require.NotNil(t, res.Schema)
	assert.Equal(t, "object", res.Schema.Type)
	assert.ElementsMatch(t, []string{"id", "name", "email"}, res.KeyPaths)
}

func TestAnalyzeJSONNoValidSamples(t *testing.T) {
	_, err := NewEngine().Analyze([][]byte{[]byte("not json")}, "application/json")
	assert.Error(t, err)
}

func TestAnalyzeYAML(t *testing.T) {
	body := []byte("server:\n  host: localhost\n  port: 8080\ntags:\n  - a\n  - b\n")
	res, err := NewEngine().Analyze([][]byte{body}, "application/yaml")
	require.NoError(t, err)

	assert.Equal(t, "yaml", res.ContentCategory)
	assert.Contains(t, res.KeyPaths, "server.host")
	assert.Contains(t, res.KeyPaths, "server.port")
	assert.Contains(t, res.KeyPaths, "tags[]")
}

func TestAnalyzeForm(t *testing.T) {
	res, err := NewEngine().Analyze([][]byte{
		[]byte("user=a&pass=1"),
		[]byte("user=b&remember=on"),
	}, "application/x-www-form-urlencoded")
	require.NoError(t, err)

	assert.Equal(t, "form", res.ContentCategory)
	require.Len(t, res.FormKeys, 3)
	// Keys are sorted.
	assert.Equal(t, "pass", res.FormKeys[0].Key)
	assert.Equal(t, "remember", res.FormKeys[1].Key)
	assert.Equal(t, "user", res.FormKeys[2].Key)

	assert.InDelta(t, 1.0, res.FormKeys[2].Frequency, 0.001)
	assert.InDelta(t, 0.5, res.FormKeys[0].Frequency, 0.001)
	assert.ElementsMatch(t, []string{"a", "b"}, res.FormKeys[2].Examples)
}

func TestAnalyzeBinarySkipped(t *testing.T) {
	res, err := NewEngine().Analyze([][]byte{{0x89, 0x50}}, "image/png")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "binary", res.ContentCategory)
	assert.NotEmpty(t, res.SkipReason)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	_, err := NewEngine().Analyze(nil, "application/json")
	assert.Error(t, err)
}

func TestAnalyzeXMLDispatch(t *testing.T) {
	body := []byte(`<catalog><item id="1"><name>a</name></item></catalog>`)
	res, err := NewEngine().Analyze([][]byte{body}, "application/xml")
	require.NoError(t, err)

	assert.Equal(t, "xml", res.ContentCategory)
	require.NotNil(t, res.XMLHierarchy)
	assert.Equal(t, "catalog", res.XMLHierarchy.Root.Name)
}

func TestAnalyzeCSVDispatch(t *testing.T) {
	body := []byte("id,name\n1,a\n2,b\n")
	res, err := NewEngine().Analyze([][]byte{body}, "text/csv")
	require.NoError(t, err)

	assert.Equal(t, "csv", res.ContentCategory)
	require.NotNil(t, res.CSVColumns)
}

func TestAnalyzeHTMLDispatch(t *testing.T) {
	body := []byte(`<html><body><form action="/login"><input name="user"></form></body></html>`)
	res, err := NewEngine().Analyze([][]byte{body}, "text/html")
	require.NoError(t, err)

	assert.Equal(t, "html", res.ContentCategory)
	require.NotNil(t, res.HTMLOutline)
}
