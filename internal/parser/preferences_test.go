package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const preferencesXML = `<?xml version="1.0"?>
<protocol>
  <name>Planning Structures</name>
  <planning_structure_set>
    <planning_structure_config>
      <name>HN_3Target</name>
      <first_target_number>1</first_target_number>
      <uniform_structures>
        <structure>Bone_Mandible</structure>
        <structure>Larynx</structure>
      </uniform_structures>
      <uniform_standoff>0.4</uniform_standoff>
      <underdose_structures/>
      <ring_hd_name>ring_HD</ring_hd_name>
      <ring_hd_ExpA><value>2</value><value>2</value></ring_hd_ExpA>
      <ring_hd_standoff>0.2</ring_hd_standoff>
    </planning_structure_config>
    <planning_structure_config>
      <name>Brain_SRS</name>
      <first_target_number>1</first_target_number>
    </planning_structure_config>
  </planning_structure_set>
</protocol>`

func TestParsePreferencesXML(t *testing.T) {
	prefs, err := ParsePreferencesXML(strings.NewReader(preferencesXML))
	require.NoError(t, err)

	rows := prefs.Workflows()
	require.Len(t, rows, 2)

	hn := rows[0]
	assert.Equal(t, "HN_3Target", hn["name"])
	assert.Equal(t, "1", hn["first_target_number"])
	assert.Equal(t, []any{"Bone_Mandible", "Larynx"}, hn["uniform_structures"])
	assert.Equal(t, "", hn["underdose_structures"])
	assert.Equal(t, []any{"2", "2"}, hn["ring_hd_ExpA"])
	assert.Equal(t, "Brain_SRS", rows[1]["name"])
}

func TestParsePreferencesXML_Malformed(t *testing.T) {
	_, err := ParsePreferencesXML(strings.NewReader("<protocol><planning_structure_config>"))
	assert.Error(t, err)
}

func TestParsePreferencesYAML(t *testing.T) {
	doc := `
planning_structure_config:
  - name: HN_3Target
    first_target_number: 1
    uniform_structures: [Bone_Mandible, Larynx]
    uniform_standoff: 0.4
  - name: Brain_SRS
`
	prefs, err := ParsePreferencesYAML(strings.NewReader(doc))
	require.NoError(t, err)

	rows := prefs.Workflows()
	require.Len(t, rows, 2)
	assert.Equal(t, "HN_3Target", rows[0]["name"])
	assert.Equal(t, 1, rows[0]["first_target_number"])
	assert.Equal(t, []any{"Bone_Mandible", "Larynx"}, rows[0]["uniform_structures"])

	_, err = ParsePreferencesYAML(strings.NewReader("planning_structure_config: nope\n"))
	assert.Error(t, err)

	empty, err := ParsePreferencesYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Workflows())
}

func TestReadPreferencesFile_ByExtension(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "planning_structs.xml")
	yamlPath := filepath.Join(dir, "planning_structs.yaml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(preferencesXML), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("planning_structure_config:\n  - name: A\n"), 0o644))

	prefs, err := ReadPreferencesFile(xmlPath)
	require.NoError(t, err)
	assert.Len(t, prefs.Workflows(), 2)

	prefs, err = ReadPreferencesFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, prefs.Workflows(), 1)
}
