package filter_test

import (
	"testing"

	"github.com/hbomb79/Verto/internal/filter"
	"github.com/stretchr/testify/assert"
)

func Test_Elaborate_Substitution(t *testing.T) {
	spec := filter.New(",crop=%1:%2:%3:%4",
		filter.Value(1280), filter.Value(720), filter.Value(0), filter.Value(40))

	assert.Equal(t, ",crop=1280:720:0:40", filter.Elaborate(spec))
}

func Test_Elaborate_HighPlaceholdersNotClobbered(t *testing.T) {
	params := make([]filter.Param, 11)
	for i := range params {
		params[i] = filter.Value(string(rune('a' + i)))
	}

	spec := filter.New(",x=%1/%10/%11", params...)
	assert.Equal(t, ",x=a/j/k", filter.Elaborate(spec))
}

func Test_Elaborate_DisabledParamDropsClause(t *testing.T) {
	tests := []struct {
		summary string
		params  []filter.Param
	}{
		{"first param disabled", []filter.Param{filter.Value("none", "none"), filter.Value("2")}},
		{"last param disabled", []filter.Param{filter.Value("1"), filter.Value("0", "0", "")}},
		{"absent param", []filter.Param{filter.Value("1"), filter.Absent()}},
		{"nil optional", []filter.Param{filter.Optional[int](nil), filter.Value("1")}},
		{"empty string sentinel", []filter.Param{filter.Value("", ""), filter.Value("1")}},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			spec := filter.New(",f=%1:%2", tt.params...)
			assert.Empty(t, filter.Elaborate(spec))
		})
	}
}

func Test_Elaborate_Verbatim(t *testing.T) {
	spec := filter.Spec{Template: ",hflip,%1", Params: []filter.Param{filter.Absent()}, Verbatim: true}
	assert.Equal(t, ",hflip,%1", filter.Elaborate(spec), "verbatim specs must not be substituted or suppressed")

	assert.Equal(t, ",eq=contrast=1.2", filter.Elaborate(filter.Verbatim("  eq=contrast=1.2 ")))
	assert.Empty(t, filter.Elaborate(filter.Verbatim("   ")))
}

func Test_Elaborate_Optional(t *testing.T) {
	v := 90
	assert.Equal(t, ",rotate=90*PI/180", filter.Elaborate(filter.New(",rotate=%1*PI/180", filter.Optional(&v))))
	assert.Empty(t, filter.Elaborate(filter.New(",rotate=%1*PI/180", filter.Optional(&v, "90"))))
}

func Test_Normalize(t *testing.T) {
	tests := []struct{ input, expected string }{
		{"", ""},
		{",", ""},
		{",,,", ""},
		{",scale=1280:-2", "scale=1280:-2"},
		{",scale=1280:-2,", "scale=1280:-2"},
		{",,fps=30,yadif,,", "fps=30,yadif"},
		{"fps=30", "fps=30"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out := filter.Normalize(tt.input)
			assert.Equal(t, tt.expected, out)
			assert.Equal(t, out, filter.Normalize(out), "Normalize must be idempotent")
			assert.NotRegexp(t, "^,|,$", out)
		})
	}
}

func Test_Compose(t *testing.T) {
	chain := filter.Compose(
		filter.New(",fps=%1", filter.Value(30)),
		filter.New(",yadif=mode=%1", filter.Absent()),
		filter.Verbatim("hflip"),
	)

	assert.Equal(t, ",fps=30,hflip", chain)
	assert.Equal(t, "fps=30,hflip", filter.Normalize(chain))
}

func Test_Contains(t *testing.T) {
	chain := "fps=30,format=nv12,hwupload"
	assert.True(t, filter.Contains(chain, "format"))
	assert.True(t, filter.Contains(chain, "hwupload"))
	assert.False(t, filter.Contains(chain, "scale"))
	assert.False(t, filter.Contains("", "format"))
}
