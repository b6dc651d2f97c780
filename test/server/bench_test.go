package servertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"placementd/server"
	"placementd/test"
	"placementd/test/factory"
)

func BenchmarkRecordView(b *testing.B) {
	test.SetUp(b)
	defer test.TearDown(b)
	dept := factory.CreateDepartment(b, "CS")
	student := factory.CreateStudent(b, dept.ID, 8.0, 0, 2026)
	job := factory.CreateActiveJob(b, factory.SampleJob)
	handler := server.Get(studentAuth(student))

	buf := new(bytes.Buffer)
	json.NewEncoder(buf).Encode(server.ViewRequest{
		SessionID:       "bench-session",
		DurationSeconds: 30,
	})
	bits := buf.Bytes()
	path := fmt.Sprintf("/v1/jobs/%s/view", job.ID)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req, _ := http.NewRequest("POST", path, bytes.NewReader(bits))
		req.SetBasicAuth("test", "password")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		b.SetBytes(int64(w.Body.Len()))
		if w.Code != 200 {
			b.Fatalf("incorrect Code: %d (response %s)", w.Code, w.Body.Bytes())
		}
	}
}
