package mrimg

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FileLayout is the decoded description of one backup file
type FileLayout struct {
	Compression Compression  `json:"compression"`
	Encryption  Encryption   `json:"encryption"`
	Header      FileHeader   `json:"header"`
	Disks       []DiskLayout `json:"disks"`

	// Path the layout was read from
	Path string `json:"-"`
}

// Compression settings are recorded but never applied
type Compression struct {
	CompressionLevel  string `json:"compression_level"`
	CompressionMethod string `json:"compression_method"`
}

// Encryption settings are recorded but never applied
type Encryption struct {
	Enable        bool   `json:"enable"`
	KeyIterations uint32 `json:"key_iterations"`
}

type FileHeader struct {
	BackupFormat      string `json:"backup_format"`
	BackupGUID        string `json:"backup_guid"`
	BackupTime        int64  `json:"backup_time"`
	BackupType        string `json:"backup_type"`
	BackupsetTime     int64  `json:"backupset_time"`
	DeltaIndex        bool   `json:"delta_index"`
	FileNumber        uint16 `json:"file_number"`
	ImagedDisksCount  uint16 `json:"imaged_disks_count"`
	ImageID           string `json:"imageid"`
	IncrementNumber   uint16 `json:"increment_number"`
	IndexFilePosition uint64 `json:"index_file_position"`
	JSONVersion       int32  `json:"json_version"`
	NetbiosName       string `json:"netbios_name"`
	SplitFile         bool   `json:"split_file"`
}

type DiskLayout struct {
	Descriptor DiskDescriptor    `json:"_descriptor"`
	Geometry   DiskGeometry      `json:"_geometry"`
	Header     DiskHeader        `json:"_header"`
	Partitions []PartitionLayout `json:"partitions"`

	// Track0 holds the verbatim first track read from the $TRACK0 block
	Track0 []byte `json:"-"`
}

type DiskDescriptor struct {
	DiskDescription  string `json:"disk_description"`
	DiskManufacturer string `json:"disk_manufacturer"`
	DiskProductID    string `json:"disk_productid"`
	DiskRevisionNo   string `json:"disk_revisonno"`
	DiskSerialNo     string `json:"disk_serialno"`
}

type DiskGeometry struct {
	BytesPerSector    uint32 `json:"bytes_per_sector"`
	Cylinders         uint64 `json:"cylinders"`
	DiskSize          uint64 `json:"disk_size"`
	MediaType         Enum   `json:"media_type"`
	SectorsPerTrack   uint32 `json:"sectors_per_track"`
	TracksPerCylinder uint32 `json:"tracks_per_cylinder"`
}

type DiskHeader struct {
	DiskFormat           string `json:"disk_format"`
	DiskNumber           uint32 `json:"disk_number"`
	DiskSignature        string `json:"disk_signature"`
	ImagedPartitionCount int32  `json:"imaged_partition_count"`
}

type PartitionLayout struct {
	FileSystem          FileSystem          `json:"_file_system"`
	Geometry            PartitionGeometry   `json:"_geometry"`
	Header              PartitionHeader     `json:"_header"`
	PartitionTableEntry PartitionTableEntry `json:"_partition_table_entry"`

	// Populated from the data block index section, not from JSON
	ReservedSectors     []DataBlockIndexElement      `json:"-"`
	DataBlockIndex      []DataBlockIndexElement      `json:"-"`
	DeltaDataBlockIndex []DeltaDataBlockIndexElement `json:"-"`
}

type FileSystem struct {
	BitlockerState            Enum   `json:"bitlocker_state"`
	DriveLetter               Enum   `json:"drive_letter"`
	End                       uint64 `json:"end"`
	FreeClusters              uint32 `json:"free_clusters"`
	LCN0FileNumber            uint16 `json:"lcn0_file_number"`
	LCN0Offset                uint64 `json:"lcn0_offset"`
	MFTOffset                 uint64 `json:"mft_offset"`
	MFTRecordSize             uint32 `json:"mft_record_size"`
	PartitionIndex            uint32 `json:"partition_index"`
	ReservedSectorsByteLength uint32 `json:"reserved_sectors_byte_length"`
	SectorsPerCluster         uint32 `json:"sectors_per_cluster"`
	ShadowCopy                string `json:"shadow_copy"`
	Start                     uint64 `json:"start"`
	TotalClusters             uint32 `json:"total_clusters"`
	Type                      Enum   `json:"type"`
	VolumeGUID                string `json:"volume_guid"`
	VolumeLabel               string `json:"volume_label"`
}

type PartitionGeometry struct {
	BootSectorOffset uint64 `json:"boot_sector_offset"`
	End              uint64 `json:"end"`
	Length           uint64 `json:"length"`
	Start            uint64 `json:"start"`
}

type FileHistory struct {
	FileName   string `json:"file_name"`
	FileNumber int32  `json:"file_number"`
}

type PartitionHeader struct {
	BlockCount          uint32        `json:"block_count"`
	BlockSize           uint32        `json:"block_size"`
	FileHistory         []FileHistory `json:"file_history"`
	FileHistoryCount    uint32        `json:"file_history_count"`
	PartitionFileOffset uint64        `json:"partition_file_offset"`
	PartitionNumber     int32         `json:"partition_number"`

	// Copied from the owning file's header after decoding
	DeltaIndex bool `json:"-"`
}

type PartitionTableEntry struct {
	Active        bool   `json:"active"`
	BootSector    uint32 `json:"boot_sector"`
	EndCylinder   uint16 `json:"end_cylinder"`
	EndHead       uint8  `json:"end_head"`
	NumSectors    uint32 `json:"num_sectors"`
	PartitionType Enum   `json:"partition_type"`
	StartCylinder uint16 `json:"start_cylinder"`
	StartHead     uint8  `json:"start_head"`
	Status        uint8  `json:"status"`
	Type          uint8  `json:"type"`
}

// DataBlockIndexElement locates one data block in its source file.
// A zero BlockLength marks a sparse block with no data.
type DataBlockIndexElement struct {
	FilePosition int64  `json:"file_position"`
	BlockLength  uint32 `json:"block_length"`
}

// Sparse reports whether the element carries no data
func (e DataBlockIndexElement) Sparse() bool {
	return e.BlockLength == 0
}

// DeltaDataBlockIndexElement replaces one block of the full backup's index
type DeltaDataBlockIndexElement struct {
	BlockIndex uint32                `json:"block_index"`
	DataBlock  DataBlockIndexElement `json:"data_block"`
}

// On-disk sizes of the packed index records
const (
	DataBlockIndexElementSize      = 12
	DeltaDataBlockIndexElementSize = 4 + DataBlockIndexElementSize
)

// Enum holds a JSON value that may be serialized either as a number or as a
// string, such as file system types and drive letters.
type Enum string

// UnmarshalJSON accepts numbers, strings, booleans and null
func (e *Enum) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Enum(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*e = Enum(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*e = Enum(strconv.FormatBool(b))
	return nil
}

// Int returns the numeric value, or -1 if the enum is not numeric
func (e Enum) Int() int64 {
	n, err := strconv.ParseInt(string(e), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Letter interprets a numeric character code, as used for drive letters
func (e Enum) Letter() string {
	n := e.Int()
	if n <= 0 || n > 0x7f {
		return string(e)
	}
	return string(rune(n))
}

// PartitionRef addresses a partition inside a FileLayout
type PartitionRef struct {
	Disk      int
	Partition int
}

// Partition returns the partition at ref, or false if it does not exist
func (l *FileLayout) Partition(ref PartitionRef) (*PartitionLayout, bool) {
	if ref.Disk < 0 || ref.Disk >= len(l.Disks) {
		return nil, false
	}
	parts := l.Disks[ref.Disk].Partitions
	if ref.Partition < 0 || ref.Partition >= len(parts) {
		return nil, false
	}
	return &parts[ref.Partition], true
}

// FindPartition returns the partition on diskIndex with the given partition number
func (l *FileLayout) FindPartition(diskIndex int, partitionNumber int32) (*PartitionLayout, bool) {
	if diskIndex < 0 || diskIndex >= len(l.Disks) {
		return nil, false
	}
	for i := range l.Disks[diskIndex].Partitions {
		p := &l.Disks[diskIndex].Partitions[i]
		if p.Header.PartitionNumber == partitionNumber {
			return p, true
		}
	}
	return nil, false
}

// IsFull reports whether this file is a full backup
func (l *FileLayout) IsFull() bool {
	return !l.Header.DeltaIndex
}

// BlockCount returns the number of entries in the partition's active index
func (p *PartitionLayout) BlockCount() int {
	if p.Header.DeltaIndex {
		return len(p.DeltaDataBlockIndex)
	}
	return len(p.DataBlockIndex)
}
