package failures

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSet_Add(t *testing.T) {
	t.Parallel()

	a := UnknownOrigin(errors.New("boom"), 1, 0, testNow)
	b := PlatformFailure(errors.New("boom"), 1, 0, testNow)

	var s Set
	s.Add(a, b, a)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []Reason{a, b}, s.Items())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestNewSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		count     int
		wantCount int
	}{
		{name: "empty", count: 0, wantCount: 0},
		{name: "under limit", count: 3, wantCount: 3},
		{name: "over limit keeps newest", count: MaxFailuresToKeep + 5, wantCount: MaxFailuresToKeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reasons := make([]Reason, 0, tt.count)
			// insert newest first so ordering is exercised
			for i := tt.count; i > 0; i-- {
				reasons = append(reasons, UnknownOrigin(errors.New("x"), 1, 0, testNow.Add(time.Duration(i)*time.Second)))
			}
			partial := true
			summary := NewSummary(reasons, &partial)
			require.Len(t, summary.Failures, tt.wantCount)
			require.NotNil(t, summary.PartialSuccess)
			for i := 1; i < len(summary.Failures); i++ {
				assert.LessOrEqual(t, summary.Failures[i-1].Timestamp, summary.Failures[i].Timestamp)
			}
			if tt.count > 0 {
				assert.Equal(t, testNow.Add(time.Duration(tt.count)*time.Second).UnixMilli(),
					summary.Failures[len(summary.Failures)-1].Timestamp)
			}
		})
	}
}

func TestCheckFailure(t *testing.T) {
	t.Parallel()

	r := CheckFailure(errors.New("bad credentials"), 42, 1, OriginDestination, testNow)
	assert.Equal(t, OriginDestination, r.Origin)
	assert.Equal(t, TypeConfigError, r.Type)
	assert.False(t, r.Retryable)
	assert.Equal(t, "check", r.Metadata.ConnectorCommand)
	assert.Equal(t, int64(42), r.Metadata.JobID)
	assert.Contains(t, r.ExternalMessage, "Checking destination connection failed")
	assert.Equal(t, "bad credentials", r.InternalMessage)
}

type typedErr struct{ kind string }

func (e typedErr) Error() string { return "typed" }
func (e typedErr) Type() string  { return e.kind }

func TestReplicationFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantType    Type
		wantMessage string
	}{
		{
			name:        "generic",
			err:         errors.New("pipe closed"),
			wantMessage: "Something went wrong during replication",
		},
		{
			name:        "launch error",
			err:         &LaunchError{Err: errors.New("no capacity")},
			wantType:    TypeTransientError,
			wantMessage: "The sync process could not be started.",
		},
		{
			name:        "serialized launch error",
			err:         typedErr{kind: LaunchErrorType},
			wantType:    TypeTransientError,
			wantMessage: "The sync process could not be started.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := ReplicationFailure(tt.err, 7, 2, testNow)
			assert.Equal(t, OriginReplication, r.Origin)
			assert.Equal(t, tt.wantType, r.Type)
			assert.Equal(t, tt.wantMessage, r.ExternalMessage)
		})
	}
}

func TestFromWorkflowAndActivity(t *testing.T) {
	t.Parallel()

	err := errors.New("activity failed")
	assert.Equal(t, OriginReplication, FromWorkflowAndActivity("SyncWorkflow", "SyncWorkflow", err, 1, 0, testNow).Origin)
	assert.Equal(t, OriginUnknown, FromWorkflowAndActivity("CheckConnectionWorkflow", "SyncWorkflow", err, 1, 0, testNow).Origin)
}

func TestForCancellation(t *testing.T) {
	t.Parallel()

	summary := ForCancellation(3, 1, nil, nil, testNow)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, TypeManualCancellation, summary.Failures[0].Type)
	assert.Nil(t, summary.PartialSuccess)
}

func TestFirstType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Type(""), FirstType(nil))
	assert.Equal(t, TypeConfigError, FirstType([]Reason{CheckFailure(nil, 1, 0, OriginSource, testNow)}))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 100))
	long := strings.Repeat("a", 200)
	out := truncate(long, 100)
	assert.LessOrEqual(t, len(out), 100)
	assert.True(t, strings.HasSuffix(out, attributionMessage))
}
