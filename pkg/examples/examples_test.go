package examples_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sqltree/pkg/examples"
)

func TestAll_Order(t *testing.T) {
	t.Parallel()

	all := examples.All()
	require.Len(t, all, 3)

	assert.Equal(t, []string{"Basic", "Comments", "Aliases"}, examples.Names())

	for idx, ex := range all {
		assert.Equal(t, examples.Names()[idx], ex.Name)
		assert.Contains(t, ex.Query, "SELECT")
	}
}

func TestDefault_IsBasic(t *testing.T) {
	t.Parallel()

	ex := examples.Default()
	assert.Equal(t, "Basic", ex.Name)
	assert.True(t, strings.HasPrefix(ex.Query, "-- Basic SQL query\nSELECT\n\tname,"))
	assert.True(t, strings.HasSuffix(ex.Query, "FROM users;"))
}

func TestGet(t *testing.T) {
	t.Parallel()

	ex, err := examples.Get("aliases")
	require.NoError(t, err)
	assert.Contains(t, ex.Query, "\t\t\tu.name AS user_name,")
	assert.True(t, strings.HasSuffix(ex.Query, "FROM mydb.myschema.users AS u;\n"))

	_, err = examples.Get("joins")
	require.ErrorIs(t, err, examples.ErrUnknownExample)
}
