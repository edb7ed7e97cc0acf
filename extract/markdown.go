package extract

import (
	"errors"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// ErrEmptyMarkdown reports a conversion that produced no usable output.
// Callers fall back to Text in that case.
var ErrEmptyMarkdown = errors.New("extract: empty markdown result")

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown converts page HTML into markdown for the summarization payload.
// baseURL anchors relative links in the output.
func Markdown(html, baseURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", ErrEmptyMarkdown
	}
	out, err := mdConverter.ConvertString(html, converter.WithDomain(baseURL))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyMarkdown
	}
	return out, nil
}
