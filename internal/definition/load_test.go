package definition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/model"
)

const sampleDefinition = `
templates:
  - id: tpl-reminder
    name: Payment reminder
    content: "Hi #{name}, your balance is #{balance}."

target_groups:
  - id: tg-vip
    name: VIP customers
    type: static
    table: customers
    contact_column: phone
    fields: [name, phone, balance]
    filters:
      - field: grade
        operator: equals
        value: VIP
  - id: tg-overdue
    name: Overdue accounts
    type: dynamic
    contact_column: phone
    query: "SELECT phone, name, balance FROM accounts WHERE overdue"

workflows:
  - id: wf-reminder
    name: Monthly reminder
    status: active
    cron: "0 9 1 * *"
    target_groups: [tg-vip, tg-overdue]
    templates:
      - template: tpl-reminder
        mappings:
          - template_variable: name
            source_type: field
            source_field: name
            default_value: customer
    bindings:
      - target_group: tg-overdue
        template: tpl-reminder
        fields:
          - template_variable: balance
            target_field: balance
            formatter: currency

mapping_templates:
  - name: Greeting
    favorite: true
    mappings:
      - template_variable: name
        source_type: field
        source_field: name
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition))
	require.NoError(t, err)

	require.Len(t, def.Templates, 1)
	require.Len(t, def.TargetGroups, 2)
	assert.Equal(t, model.TargetTypeStatic, def.TargetGroups[0].Type)
	assert.Equal(t, []string{"name", "phone", "balance"}, def.TargetGroups[0].Fields)
	assert.Equal(t, model.FilterEquals, def.TargetGroups[0].Filters[0].Operator)

	require.Len(t, def.Workflows, 1)
	w := def.Workflows[0]
	require.NotNil(t, w.Cron)
	assert.Equal(t, "0 9 1 * *", *w.Cron)
	assert.Equal(t, "customer", w.Templates[0].Mappings[0].DefaultValue)
	assert.Equal(t, model.FormatCurrency, w.Bindings[0].Fields[0].Formatter)

	require.Len(t, def.MappingTemplates, 1)
	assert.True(t, def.MappingTemplates[0].Favorite)
}

func TestParse_Empty(t *testing.T) {
	def, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, def.Workflows)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown key",
			yaml: "templates:\n  - id: t\n    name: n\n    content: c\n    colour: red\n",
			want: "colour",
		},
		{
			name: "static group without table",
			yaml: "target_groups:\n  - id: tg\n    name: n\n    type: static\n    contact_column: phone\n",
			want: "Table",
		},
		{
			name: "dynamic group without query",
			yaml: "target_groups:\n  - id: tg\n    name: n\n    type: dynamic\n    contact_column: phone\n",
			want: "Query",
		},
		{
			name: "bad filter operator",
			yaml: "target_groups:\n  - id: tg\n    name: n\n    type: static\n    table: t\n    contact_column: phone\n    filters:\n      - field: a\n        operator: like\n",
			want: "Operator",
		},
		{
			name: "bad cron",
			yaml: "templates:\n  - {id: t, name: n, content: c}\ntarget_groups:\n  - {id: g, name: n, type: dynamic, query: q, contact_column: phone}\nworkflows:\n  - id: w\n    name: n\n    cron: every monday\n    target_groups: [g]\n    templates:\n      - template: t\n",
			want: "Cron",
		},
		{
			name: "unknown template",
			yaml: "target_groups:\n  - {id: g, name: n, type: dynamic, query: q, contact_column: phone}\nworkflows:\n  - id: w\n    name: n\n    target_groups: [g]\n    templates:\n      - template: missing\n",
			want: `unknown template "missing"`,
		},
		{
			name: "unknown target group",
			yaml: "templates:\n  - {id: t, name: n, content: c}\nworkflows:\n  - id: w\n    name: n\n    target_groups: [missing]\n    templates:\n      - template: t\n",
			want: `unknown target group "missing"`,
		},
		{
			name: "binding to detached group",
			yaml: "templates:\n  - {id: t, name: n, content: c}\ntarget_groups:\n  - {id: g, name: n, type: dynamic, query: q, contact_column: phone}\n  - {id: h, name: n, type: dynamic, query: q, contact_column: phone}\nworkflows:\n  - id: w\n    name: n\n    target_groups: [g]\n    templates:\n      - template: t\n    bindings:\n      - target_group: h\n        template: t\n        fields:\n          - {template_variable: a, target_field: b}\n",
			want: "not attached",
		},
		{
			name: "duplicate template",
			yaml: "templates:\n  - {id: t, name: n, content: c}\n  - {id: t, name: m, content: d}\n",
			want: "declared twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_ReferenceErrorsAreConfigurationErrors(t *testing.T) {
	_, err := Parse([]byte("templates:\n  - {id: t, name: n, content: c}\n  - {id: t, name: m, content: d}\n"))

	var cfgErr *model.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "template t", cfgErr.Subject)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinition), 0o644))

	def, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, def.Workflows, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read definition")
}
