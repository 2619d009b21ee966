package gcs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/bobg/sitesync/testutil"
)

func TestObjName(t *testing.T) {
	cases := []struct {
		prefix, path, want string
	}{
		{prefix: "", path: "/index.html", want: "index.html"},
		{prefix: "sites/a/", path: "/css/x.css", want: "sites/a/css/x.css"},
	}
	for _, c := range cases {
		b := New(nil, c.prefix)
		got := b.objName(c.path)
		if got != c.want {
			t.Errorf("objName(%q) with prefix %q: got %q, want %q", c.path, c.prefix, got, c.want)
		}
		back, ok := b.pathFromObjName(got)
		if !ok || back != c.path {
			t.Errorf("pathFromObjName(%q): got %q, %v", got, back, ok)
		}
	}

	if _, ok := New(nil, "sites/a/").pathFromObjName("sites/b/x"); ok {
		t.Error("expected object outside prefix to be rejected")
	}
}

const (
	credsVar = "SITESYNC_GCS_TESTING_CREDS"
	projVar  = "SITESYNC_GCS_TESTING_PROJECT"
)

func TestBackend(t *testing.T) {
	var (
		creds     = os.Getenv(credsVar)
		projectID = os.Getenv(projVar)
	)
	if creds == "" || projectID == "" {
		t.Skipf("to run TestBackend, set %s to the name of a credentials file and %s to a project ID", credsVar, projVar)
	}

	var r [30]byte
	if _, err := rand.Read(r[:]); err != nil {
		t.Fatal(err)
	}
	bucketName := hex.EncodeToString(r[:])

	ctx := context.Background()

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}

	t.Logf("creating bucket %s in project %s", bucketName, projectID)

	bucket := client.Bucket(bucketName)
	if err = bucket.Create(ctx, projectID, nil); err != nil {
		t.Fatal(err)
	}
	defer bucket.Delete(ctx)

	testutil.Backend(ctx, t, New(bucket, "ws/"))
}
