package facts

import "testing"

func TestExtractOSVersion(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   string
		wantOK bool
	}{
		{
			name: "ubuntu os-release",
			data: `NAME="Ubuntu"
VERSION="18.04.6 LTS (Bionic Beaver)"
ID=ubuntu
VERSION_ID="18.04"
PRETTY_NAME="Ubuntu 18.04.6 LTS"`,
			want:   "18.04",
			wantOK: true,
		},
		{
			name: "bare major version id",
			data: `ID=debian
VERSION_ID=12`,
			want:   "12",
			wantOK: true,
		},
		{
			name: "lsb-release fallback",
			data: `DISTRIB_ID=Ubuntu
DISTRIB_RELEASE=18.04
DISTRIB_CODENAME=bionic`,
			want:   "18.04",
			wantOK: true,
		},
		{
			name: "version line fallback before version id",
			data: `VERSION="22.04.3 LTS (Jammy Jellyfish)"
VERSION_ID="22.04"`,
			want:   "22.04",
			wantOK: true,
		},
		{
			name: "comments and blanks skipped",
			data: `# generated by the image builder

VERSION_ID="35.4.1"`,
			want:   "35.4.1",
			wantOK: true,
		},
		{
			name:   "no version anywhere",
			data:   "NAME=CustomOS\nID=custom",
			wantOK: false,
		},
		{
			name:   "empty descriptor",
			data:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractOSVersion(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("extractOSVersion ok = %v, want %v (got %q)", ok, tt.wantOK, got)
			}
			if got != tt.want {
				t.Errorf("extractOSVersion = %q, want %q", got, tt.want)
			}
		})
	}
}
