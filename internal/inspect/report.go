// Package inspect renders the decoded layout of a backup file
package inspect

import (
	"time"

	"github.com/deploymenttheory/go-mrimg-restore/internal/backupset"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
)

// Report is the exported view of one backup file
type Report struct {
	Path         string       `json:"path" plist:"Path"`
	BackupGUID   string       `json:"backup_guid" plist:"BackupGUID"`
	BackupTime   string       `json:"backup_time,omitempty" plist:"BackupTime,omitempty"`
	FileNumber   uint16       `json:"file_number" plist:"FileNumber"`
	Incremental  bool         `json:"incremental" plist:"Incremental"`
	NetbiosName  string       `json:"netbios_name,omitempty" plist:"NetbiosName,omitempty"`
	Compression  string       `json:"compression,omitempty" plist:"Compression,omitempty"`
	Encrypted    bool         `json:"encrypted" plist:"Encrypted"`
	Disks        []DiskReport `json:"disks" plist:"Disks"`
	IndexOffset  uint64       `json:"index_file_position" plist:"IndexFilePosition"`
	ChainsLoaded bool         `json:"chains_loaded" plist:"ChainsLoaded"`
}

// DiskReport describes one imaged disk
type DiskReport struct {
	Index          int               `json:"index" plist:"Index"`
	Number         uint32            `json:"disk_number" plist:"DiskNumber"`
	Format         string            `json:"disk_format" plist:"DiskFormat"`
	Signature      string            `json:"disk_signature,omitempty" plist:"DiskSignature,omitempty"`
	Description    string            `json:"description,omitempty" plist:"Description,omitempty"`
	SizeBytes      uint64            `json:"size_bytes" plist:"SizeBytes"`
	BytesPerSector uint32            `json:"bytes_per_sector" plist:"BytesPerSector"`
	Track0Bytes    int               `json:"track0_bytes" plist:"Track0Bytes"`
	Partitions     []PartitionReport `json:"partitions" plist:"Partitions"`
}

// PartitionReport describes one imaged partition
type PartitionReport struct {
	Number         int32    `json:"partition_number" plist:"PartitionNumber"`
	FileSystem     string   `json:"file_system" plist:"FileSystem"`
	DriveLetter    string   `json:"drive_letter,omitempty" plist:"DriveLetter,omitempty"`
	Label          string   `json:"volume_label,omitempty" plist:"VolumeLabel,omitempty"`
	Start          uint64   `json:"start" plist:"Start"`
	Length         uint64   `json:"length" plist:"Length"`
	BlockSize      uint32   `json:"block_size" plist:"BlockSize"`
	IndexEntries   int      `json:"index_entries" plist:"IndexEntries"`
	ReservedBlocks int      `json:"reserved_blocks" plist:"ReservedBlocks"`
	History        []string `json:"history" plist:"History"`
	Chain          []string `json:"chain,omitempty" plist:"Chain,omitempty"`
	ChainError     string   `json:"chain_error,omitempty" plist:"ChainError,omitempty"`
}

// NewReport builds the report for layout. When resolver is non-nil the
// chain of every partition is resolved and listed; resolution failures are
// recorded per partition rather than returned.
func NewReport(layout *mrimg.FileLayout, resolver *backupset.Resolver) *Report {
	r := &Report{
		Path:         layout.Path,
		BackupGUID:   layout.Header.BackupGUID,
		FileNumber:   layout.Header.FileNumber,
		Incremental:  layout.Header.DeltaIndex,
		NetbiosName:  layout.Header.NetbiosName,
		Compression:  layout.Compression.CompressionMethod,
		Encrypted:    layout.Encryption.Enable,
		IndexOffset:  layout.Header.IndexFilePosition,
		ChainsLoaded: resolver != nil,
	}
	if layout.Header.BackupTime > 0 {
		r.BackupTime = time.Unix(layout.Header.BackupTime, 0).UTC().Format(time.RFC3339)
	}

	for d := range layout.Disks {
		disk := &layout.Disks[d]
		dr := DiskReport{
			Index:          d,
			Number:         disk.Header.DiskNumber,
			Format:         disk.Header.DiskFormat,
			Signature:      disk.Header.DiskSignature,
			Description:    disk.Descriptor.DiskDescription,
			SizeBytes:      disk.Geometry.DiskSize,
			BytesPerSector: disk.Geometry.BytesPerSector,
			Track0Bytes:    len(disk.Track0),
		}

		for p := range disk.Partitions {
			part := &disk.Partitions[p]
			pr := PartitionReport{
				Number:         part.Header.PartitionNumber,
				FileSystem:     string(part.FileSystem.Type),
				DriveLetter:    part.FileSystem.DriveLetter.Letter(),
				Label:          part.FileSystem.VolumeLabel,
				Start:          part.Geometry.Start,
				Length:         part.Geometry.Length,
				BlockSize:      part.Header.BlockSize,
				IndexEntries:   part.BlockCount(),
				ReservedBlocks: len(part.ReservedSectors),
				History:        []string{},
			}
			for _, h := range part.Header.FileHistory {
				pr.History = append(pr.History, h.FileName)
			}

			if resolver != nil {
				chain, err := resolver.Resolve(layout, d, part)
				if err != nil {
					pr.ChainError = err.Error()
				} else {
					pr.Chain = chain.Paths()
				}
			}
			dr.Partitions = append(dr.Partitions, pr)
		}
		r.Disks = append(r.Disks, dr)
	}
	return r
}
