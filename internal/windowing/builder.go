// Package windowing turns a delimited time-series file into fixed-length,
// overlapping windows of consecutive rows.
package windowing

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

const maxLineSize = 4 * 1024 * 1024

// Builder parses rows and slices them into windows.
//
// Separator is compiled as a regular expression, so "," splits on commas
// while `\s+` or `[,;]` split on a pattern. Characters with a special
// meaning in regular expressions (".", "|", "+" ...) must be escaped to be
// matched literally.
type Builder struct {
	Separator    string
	WindowLength int

	logger  *logrus.Logger
	pattern *regexp.Regexp
}

// NewBuilder creates a new window builder.
// windowLength is seqLength+1 and must be at least 2.
func NewBuilder(separator string, windowLength int, logger *logrus.Logger) (*Builder, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if separator == "" {
		return nil, errors.NewInvalidConfigError("separator", "must not be empty")
	}
	if windowLength < 2 {
		return nil, errors.NewInvalidConfigError("seq_length",
			fmt.Sprintf("window length must be at least 2, got %d", windowLength))
	}
	pattern, err := regexp.Compile(separator)
	if err != nil {
		e := errors.NewInvalidConfigError("separator", fmt.Sprintf("invalid pattern %q", separator))
		e.Cause = err
		return nil, e
	}
	return &Builder{
		Separator:    separator,
		WindowLength: windowLength,
		logger:       logger,
		pattern:      pattern,
	}, nil
}

// BuildWindows reads source and returns its windows.
func BuildWindows(source io.Reader, separator string, windowLength int) ([]models.Window, error) {
	b, err := NewBuilder(separator, windowLength, nil)
	if err != nil {
		return nil, err
	}
	return b.Build(source)
}

// Build parses source into rows and slices them into windows.
func (b *Builder) Build(source io.Reader) ([]models.Window, error) {
	rows, err := b.ReadRows(source)
	if err != nil {
		return nil, err
	}
	windows := Slide(rows, b.WindowLength)

	b.logger.WithFields(logrus.Fields{
		"rows":          len(rows),
		"window_length": b.WindowLength,
		"windows":       len(windows),
	}).Debug("Built windows")

	if len(windows) == 0 {
		b.logger.WithFields(logrus.Fields{
			"rows":          len(rows),
			"window_length": b.WindowLength,
		}).Warn("Series is too short to produce any window")
	}
	return windows, nil
}

// ReadRows parses every non-blank line of source into a Row.
// All rows must share the width of the first one.
func (b *Builder) ReadRows(source io.Reader) ([]models.Row, error) {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var rows []models.Row
	width := -1
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		row, err := b.parseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		if width == -1 {
			width = len(row)
		}
		if len(row) == 0 || len(row) != width {
			return nil, errors.NewSchemaError(lineNo, width, len(row))
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewParseError(0, err, "failed to read source")
	}
	return rows, nil
}

func (b *Builder) parseLine(line string, lineNo int) (models.Row, error) {
	tokens := b.pattern.Split(line, -1)
	row := make(models.Row, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, errors.NewParseError(lineNo, errors.ErrMalformedValue,
				fmt.Sprintf("cannot parse %q as a number", token)).
				WithContext("token", token).
				WithDetails(line)
		}
		row = append(row, value)
	}
	return row, nil
}

// Slide cuts rows into windows of windowLength consecutive rows with a
// stride of one. It yields len(rows)-windowLength windows, so a series of
// windowLength rows or fewer produces none. Windows share the rows' storage.
func Slide(rows []models.Row, windowLength int) []models.Window {
	count := len(rows) - windowLength
	if windowLength <= 0 || count <= 0 {
		return []models.Window{}
	}
	windows := make([]models.Window, count)
	for i := 0; i < count; i++ {
		windows[i] = models.Window(rows[i : i+windowLength : i+windowLength])
	}
	return windows
}
