package gimbal

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
)

// CustomMirrorPrefix marks mirror keys created through AddMirror. Only keys
// under this prefix are removable; everything else is treated as built-in.
const CustomMirrorPrefix = "custom_"

// Account is a saved credential identity on the remote store.
type Account struct {
	Username  string `json:"username"`
	Fullname  string `json:"fullname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsPro     bool   `json:"is_pro,omitempty"`
}

// Mirror is a download endpoint. Built-in mirrors ship with the store;
// user-created ones carry a CustomMirrorPrefix key.
type Mirror struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Region      string `json:"region,omitempty"`
}

// Removable reports whether the mirror was user-created and may be deleted.
func (m Mirror) Removable() bool {
	return strings.HasPrefix(m.Key, CustomMirrorPrefix)
}

// Outcome is the business result of a mutating call. Success false with a
// message is a rejection by the remote store, distinct from a transport
// error: the call completed, the store said no.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TokenInfo is the result of a token preflight check.
type TokenInfo struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Fullname string `json:"fullname,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Document is the full settings state. JSON tags are the wire contract
// with the remote store; Patch keys use the same names.
//
// ResolvedHFCacheDir is derived server-side from HFCacheDir and must never
// be written directly; it is one reason every successful update is followed
// by a refresh.
type Document struct {
	Mirrors       []Mirror `json:"mirrors"`
	CurrentMirror string   `json:"current_mirror"`

	DownloadDir        string   `json:"download_dir"`
	DownloadDirHistory []string `json:"download_dir_history"`
	HFCacheDir         string   `json:"hf_cache_dir"`
	ResolvedHFCacheDir string   `json:"resolved_hf_cache_dir"`
	HFCacheHistory     []string `json:"hf_cache_history"`

	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	DefaultSearchLimit     int    `json:"default_search_limit"`
	UseHFTransfer          bool   `json:"use_hf_transfer"`
	ProxyURL               string `json:"proxy_url"`
	CheckUpdateOnStart     bool   `json:"check_update_on_start"`
	DownloadMethod         string `json:"download_method"`
	PythonMaxWorkers       int    `json:"python_max_workers"`

	Aria2Port             int    `json:"aria2_port"`
	Aria2Split            int    `json:"aria2_split"`
	Aria2MaxConnPerServer int    `json:"aria2_max_connection_per_server"`
	Aria2CheckCertificate bool   `json:"aria2_check_certificate"`
	Aria2AllProxy         string `json:"aria2_all_proxy"`
	Aria2ReuseURI         bool   `json:"aria2_reuse_uri"`

	ShowSearchHistory    bool `json:"show_search_history"`
	ShowTrendingTags     bool `json:"show_trending_tags"`
	ShowTrendingRepos    bool `json:"show_trending_repos"`
	DebugMode            bool `json:"debug_mode"`
	AutoResumeIncomplete bool `json:"auto_resume_incomplete"`

	Language string `json:"language"`

	ActiveUsername string    `json:"active_username"`
	Accounts       []Account `json:"accounts"`
}

// Patch is a partial document keyed by wire field name. Only the named
// fields are written; everything else is untouched by the merge.
type Patch map[string]any

var (
	fieldSetOnce sync.Once
	fieldSet     map[string]struct{}
)

// documentFields returns the set of valid patch keys, derived from the
// Document's wire tags.
func documentFields() map[string]struct{} {
	fieldSetOnce.Do(func() {
		fieldSet = make(map[string]struct{})
		t := reflect.TypeOf(Document{})
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			name, _, _ := strings.Cut(tag, ",")
			if name != "" && name != "-" {
				fieldSet[name] = struct{}{}
			}
		}
	})
	return fieldSet
}

// Validate rejects patches containing keys the document does not define.
func (p Patch) Validate() error {
	fields := documentFields()
	for key := range p {
		if _, ok := fields[key]; !ok {
			return &ValidationError{Field: key, Reason: "unknown settings field"}
		}
	}
	return nil
}

// Merge returns a copy of the document with the patch applied. Unknown keys
// and type mismatches fail as ValidationError without side effects.
func (d Document) Merge(p Patch) (Document, error) {
	if err := p.Validate(); err != nil {
		return Document{}, err
	}

	base, err := json.Marshal(d)
	if err != nil {
		return Document{}, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return Document{}, err
	}

	for key, value := range p {
		raw, err := json.Marshal(value)
		if err != nil {
			return Document{}, &ValidationError{Field: key, Reason: "value cannot be encoded"}
		}
		fields[key] = raw
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return Document{}, err
	}

	var out Document
	if err := json.Unmarshal(merged, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Document{}, &ValidationError{Field: typeErr.Field, Reason: "wrong type for field"}
		}
		return Document{}, err
	}
	return out, nil
}

// Clone returns a deep copy; mutating the copy never aliases the original's
// slices.
func (d Document) Clone() Document {
	out := d
	out.Mirrors = append([]Mirror(nil), d.Mirrors...)
	out.DownloadDirHistory = append([]string(nil), d.DownloadDirHistory...)
	out.HFCacheHistory = append([]string(nil), d.HFCacheHistory...)
	out.Accounts = append([]Account(nil), d.Accounts...)
	return out
}

// ActiveAccount returns the account matching ActiveUsername, if any.
func (d Document) ActiveAccount() (Account, bool) {
	for _, a := range d.Accounts {
		if a.Username == d.ActiveUsername && a.Username != "" {
			return a, true
		}
	}
	return Account{}, false
}

// FindMirror returns the mirror with the given key, if any.
func (d Document) FindMirror(key string) (Mirror, bool) {
	for _, m := range d.Mirrors {
		if m.Key == key {
			return m, true
		}
	}
	return Mirror{}, false
}

// BuiltinMirrors returns the mirrors every document starts with.
func BuiltinMirrors() []Mirror {
	return []Mirror{
		{
			Key:    "official",
			Name:   "HuggingFace Official",
			URL:    "https://huggingface.co",
			Region: "global",
		},
		{
			Key:    "hf-mirror",
			Name:   "HF-Mirror",
			URL:    "https://hf-mirror.com",
			Region: "cn",
		},
	}
}

// DefaultDocument returns the settings a fresh store starts from.
func DefaultDocument() Document {
	return Document{
		Mirrors:       BuiltinMirrors(),
		CurrentMirror: "official",

		MaxConcurrentDownloads: 3,
		DefaultSearchLimit:     10,
		CheckUpdateOnStart:     true,
		DownloadMethod:         "PYTHON",
		PythonMaxWorkers:       8,

		Aria2Port:             6810,
		Aria2Split:            16,
		Aria2MaxConnPerServer: 16,
		Aria2ReuseURI:         true,

		ShowSearchHistory: true,
		ShowTrendingTags:  true,
		ShowTrendingRepos: true,

		Language: "en",
	}
}

// DownloadDefaultsPatch resets the performance-related download knobs to
// their defaults, as a single patch.
func DownloadDefaultsPatch() Patch {
	d := DefaultDocument()
	return Patch{
		"max_concurrent_downloads":        d.MaxConcurrentDownloads,
		"use_hf_transfer":                 d.UseHFTransfer,
		"download_method":                 d.DownloadMethod,
		"python_max_workers":              d.PythonMaxWorkers,
		"aria2_split":                     d.Aria2Split,
		"aria2_max_connection_per_server": d.Aria2MaxConnPerServer,
		"aria2_check_certificate":         d.Aria2CheckCertificate,
		"aria2_reuse_uri":                 d.Aria2ReuseURI,
	}
}
