package pkgid

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/datapkg/internal/apperr"
)

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		"acme/widget",
		"a/b",
		"Owner_1/pkg_2",
		"x9/y_z_",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			id, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, id.Owner+"/"+id.Name)
			assert.Equal(t, in, id.String())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"acme",
		"/widget",
		"acme/",
		"/",
		"acme/widget/extra",
		"a//b",
		"acme/1widget",
		"_acme/widget",
		"ac-me/widget",
		"acme/wid get",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)

			var parseErr *apperr.ParseError
			assert.True(t, errors.As(err, &parseErr), "want *apperr.ParseError, got %T", err)
		})
	}
}

func TestParse_MessageNamesHalf(t *testing.T) {
	_, err := Parse("9acme/widget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid user name")

	_, err = Parse("acme/9widget")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid package name")

	_, err = Parse("acme")
	require.Error(t, err)
	assert.Equal(t, "Specify package as owner/package_name.", err.Error())
}

func TestCompare(t *testing.T) {
	ids := []ID{
		{Owner: "zeta", Name: "a"},
		{Owner: "acme", Name: "widget"},
		{Owner: "acme", Name: "gadget"},
	}
	slices.SortFunc(ids, Compare)

	assert.Equal(t, []ID{
		{Owner: "acme", Name: "gadget"},
		{Owner: "acme", Name: "widget"},
		{Owner: "zeta", Name: "a"},
	}, ids)
}
