package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmined/syncengine/internal/model"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "LocalCreateDir", KindLocalCreateDir.String())
	assert.Equal(t, "UploadSession", KindUploadSession.String())
	assert.Equal(t, "CopyToDir", KindCopyToDir.String())
	assert.Equal(t, "Unknown", Kind(255).String())
}

func TestJob_RemoteParentID_PrefersResolvedOverStatic(t *testing.T) {
	j := &Job{RemoteParentID: "static-id"}
	assert.Equal(t, "static-id", j.remoteParentID())

	j.resolveParentRemoteID = func() (string, bool) { return "resolved-id", true }
	assert.Equal(t, "resolved-id", j.remoteParentID())
}

func TestJob_RemoteParentID_FallsBackWhenResolverMisses(t *testing.T) {
	j := &Job{RemoteParentID: "static-id"}
	j.resolveParentRemoteID = func() (string, bool) { return "", false }
	assert.Equal(t, "static-id", j.remoteParentID())

	j.resolveParentRemoteID = func() (string, bool) { return "", true }
	assert.Equal(t, "static-id", j.remoteParentID())
}

func TestJob_AffectedSide_DefaultsToLocal(t *testing.T) {
	j := &Job{}
	assert.Equal(t, model.Local, j.affectedSide())
}
