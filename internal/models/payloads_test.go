package models

import (
	"encoding/json"
	"testing"
)

func TestRecordJSON(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "file",
			rec: FileRecord(ConvertedFile{
				Name:          "CartRepository.java",
				Path:          "Repository/CartRepository.java",
				SourcePath:    "Repositories/ICartRepository.cs",
				OriginalCode:  "interface ICartRepository {}",
				ConvertedCode: "interface CartRepository {}",
			}),
			want: `{"type":"file","data":{"name":"CartRepository.java","path":"Repository/CartRepository.java","sourcePath":"Repositories/ICartRepository.cs","originalCode":"interface ICartRepository {}","convertedCode":"interface CartRepository {}"}}`,
		},
		{
			name: "error",
			rec:  ErrorRecord("No suitable files found in the zip file!"),
			want: `{"type":"error","message":"No suitable files found in the zip file!"}`,
		},
		{
			name: "complete keeps the archive path server side",
			rec: func() Record {
				r := CompleteRecord("/tmp/run/springboot_output.zip")
				r.DownloadID = "6f1c"
				return r
			}(),
			want: `{"type":"complete","downloadId":"6f1c"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.rec)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("json = %s\nwant   %s", got, tt.want)
			}
		})
	}
}
