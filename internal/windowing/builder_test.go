package windowing

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

func seriesFile(rows int, format func(i int) string) string {
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		sb.WriteString(format(i))
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestBuildWindowsCountAndLength(t *testing.T) {
	input := seriesFile(70, func(i int) string { return fmt.Sprintf("%d.5", i) })

	windows, err := BuildWindows(strings.NewReader(input), ",", 10)
	require.NoError(t, err)
	require.Len(t, windows, 60)

	for _, w := range windows {
		assert.Equal(t, 10, w.Len())
		assert.Equal(t, 1, w.Features())
	}
}

func TestBuildWindowsContiguity(t *testing.T) {
	input := seriesFile(25, func(i int) string { return fmt.Sprintf("%d,%d,", i, i*10) })

	windows, err := BuildWindows(strings.NewReader(input), ",", 4)
	require.NoError(t, err)
	require.Len(t, windows, 21)

	for start, w := range windows {
		for j, row := range w {
			require.Len(t, row, 2, "trailing separator must not add a field")
			assert.Equal(t, float64(start+j), row[0])
			assert.Equal(t, float64((start+j)*10), row[1])
		}
	}
}

func TestBuildWindowsShortSeries(t *testing.T) {
	input := seriesFile(5, func(i int) string { return "1" })

	windows, err := BuildWindows(strings.NewReader(input), ",", 5)
	require.NoError(t, err)
	assert.Empty(t, windows)

	windows, err = BuildWindows(strings.NewReader(input), ",", 8)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestBuildWindowsMalformedLine(t *testing.T) {
	input := "1.0,2.0\n3.0,4.0\n1.0,,abc\n5.0,6.0\n"

	_, err := BuildWindows(strings.NewReader(input), ",", 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "abc")

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 3, appErr.Context["line"])
}

func TestBuildWindowsReadFailure(t *testing.T) {
	cause := stderrors.New("disk unplugged")
	tests := []struct {
		name   string
		source io.Reader
		err    error
	}{
		{"reader error", iotest.ErrReader(cause), cause},
		{"line too long", strings.NewReader("1.0\n" + strings.Repeat("1", maxLineSize+1) + "\n"), bufio.ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildWindows(tt.source, ",", 2)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
			assert.ErrorIs(t, err, tt.err)

			var appErr *errors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, errors.CodeReadFailed, appErr.Code)
			assert.NotContains(t, appErr.Context, "line")
			assert.NotContains(t, err.Error(), "line ")
		})
	}
}

func TestBuildWindowsInconsistentWidth(t *testing.T) {
	input := "1,2,3\n4,5,6\n7,8\n"

	_, err := BuildWindows(strings.NewReader(input), ",", 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
	assert.Contains(t, err.Error(), "line 3")
}

func TestBuildWindowsSeparatorOnlyLine(t *testing.T) {
	input := "1,2\n,,\n3,4\n"

	_, err := BuildWindows(strings.NewReader(input), ",", 2)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestBuildWindowsSkipsBlankLines(t *testing.T) {
	input := "1\n\n2\n   \n3\n4\n"

	b, err := NewBuilder(",", 2, nil)
	require.NoError(t, err)
	rows, err := b.ReadRows(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestBuildWindowsPatternSeparator(t *testing.T) {
	input := "1 2\t3\n4  5 6\n7 8  9\n"

	windows, err := BuildWindows(strings.NewReader(input), `\s+`, 2)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, []float64{4, 5, 6}, []float64(windows[0][1]))

	windows, err = BuildWindows(strings.NewReader("1;2\n3,4\n5;6\n"), "[,;]", 2)
	require.NoError(t, err)
	require.Len(t, windows, 1)
}

func TestNewBuilderInvalidConfig(t *testing.T) {
	_, err := NewBuilder(",", 1, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	_, err = NewBuilder("", 3, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	_, err = NewBuilder("[", 3, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))
}

func TestSlideSharesRows(t *testing.T) {
	input := seriesFile(6, func(i int) string { return fmt.Sprint(i) })
	b, err := NewBuilder(",", 3, nil)
	require.NoError(t, err)
	rows, err := b.ReadRows(strings.NewReader(input))
	require.NoError(t, err)

	windows := Slide(rows, 3)
	require.Len(t, windows, 3)
	assert.Same(t, &rows[1][0], &windows[0][1][0])
	assert.Same(t, &rows[1][0], &windows[1][0][0])
}
