package pom

// MetadataFile is the name of the repository metadata document next to the versions of an artifact.
const MetadataFile = "maven-metadata.xml"

// Snapshot is the latest published build of a snapshot version.
type Snapshot struct {
	Timestamp   string
	BuildNumber string
}

// Complete reports whether both timestamp and build number are known.
func (s *Snapshot) Complete() bool {
	return s != nil && s.Timestamp != "" && s.BuildNumber != ""
}

// Metadata is a parsed maven-metadata.xml document.
type Metadata struct {
	GroupID     string
	ArtifactID  string
	Version     string
	LastUpdated string
	// Snapshot is nil when the document has no versioning/snapshot element.
	Snapshot *Snapshot
	Versions []string
}

// ParseMetadata parses an in-memory metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	node, err := Root(data, "metadata")
	if err != nil {
		return nil, err
	}
	return newMetadata(node), nil
}

func newMetadata(node Node) *Metadata {
	m := &Metadata{
		GroupID:     node.Text("groupId"),
		ArtifactID:  node.Text("artifactId"),
		Version:     node.Text("version"),
		LastUpdated: node.Text("versioning/lastUpdated"),
	}
	if s := Last(node.Elements("versioning/snapshot")); s.Exists() {
		m.Snapshot = &Snapshot{
			Timestamp:   s.Text("timestamp"),
			BuildNumber: s.Text("buildNumber"),
		}
	}
	for _, v := range node.Elements("versioning/versions/version") {
		m.Versions = append(m.Versions, v.Text(""))
	}
	return m
}
