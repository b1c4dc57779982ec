package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, `"flu" OR "fever shot"`, BuildQuery([]string{"Flu", " Fever Shot ", ""}))
	assert.Equal(t, "", BuildQuery(nil))
}

func TestQueryHash(t *testing.T) {
	// md5("") is well known
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", QueryHash(""))
	assert.Len(t, QueryHash(`"flu"`), 32)
}

func TestOutputName(t *testing.T) {
	user := Target{ID: "a", Kind: KindUser, UserID: 783214}
	assert.Equal(t, "783214", user.OutputName())

	keyed := Target{ID: "12345", Kind: KindUser}
	assert.Equal(t, "12345", keyed.OutputName())
	assert.Equal(t, int64(12345), keyed.TimelineUserID())

	search := Target{ID: "q1", Kind: KindQuery, Terms: []string{"flu"}}
	assert.Equal(t, QueryHash(`"flu"`), search.OutputName())

	search.OutputFilename = "flu.ndjson"
	assert.Equal(t, "flu.ndjson", search.OutputName())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Target{ID: "1", Kind: KindUser, UserID: 1}.Validate())
	assert.NoError(t, Target{ID: "42", Kind: KindUser}.Validate())
	assert.Error(t, Target{ID: "alice", Kind: KindUser}.Validate())
	assert.NoError(t, Target{ID: "q", Kind: KindQuery, Query: `"x"`}.Validate())
	assert.Error(t, Target{ID: "q", Kind: KindQuery}.Validate())
	assert.Error(t, Target{ID: "q", Kind: KindQuery, Terms: []string{"x"}, SinceID: -1}.Validate())
	assert.Error(t, Target{ID: "z"}.Validate())
}

func TestTargetJSONMatchesProgressFile(t *testing.T) {
	raw := `{"terms":["flu"],"querystring":"\"flu\"","output_filename":"abc","lang":"en","since_id":1234567890123456789,"remove":false}`

	var target Target
	require.NoError(t, json.Unmarshal([]byte(raw), &target))
	assert.Equal(t, int64(1234567890123456789), target.SinceID)
	assert.Equal(t, []string{"flu"}, target.Terms)
	assert.Equal(t, "en", target.Lang)

	out, err := json.Marshal(Target{UserID: 7, SinceID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":7,"since_id":1,"remove":false}`, string(out))
}

func TestTargetKeepsUnknownKeys(t *testing.T) {
	var target Target
	require.NoError(t, json.Unmarshal([]byte(`{"user_id": 12, "since_id": 5, "screen_name": "alice", "tags": [1, 2]}`), &target))
	assert.Equal(t, int64(12), target.UserID)
	assert.Equal(t, int64(5), target.SinceID)
	require.Len(t, target.Extra, 2)
	assert.JSONEq(t, `"alice"`, string(target.Extra["screen_name"]))

	target.SinceID = 9
	data, err := json.Marshal(target)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id": 12, "since_id": 9, "remove": false, "screen_name": "alice", "tags": [1, 2]}`, string(data))
}

func TestTargetKnownFieldsWinOverExtra(t *testing.T) {
	target := Target{UserID: 3, SinceID: 7, Extra: map[string]json.RawMessage{"since_id": json.RawMessage(`1`)}}
	data, err := json.Marshal(target)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id": 3, "since_id": 7, "remove": false}`, string(data))

	var plain Target
	require.NoError(t, json.Unmarshal([]byte(`{"user_id": 3, "since_id": 7}`), &plain))
	assert.Nil(t, plain.Extra)
}
