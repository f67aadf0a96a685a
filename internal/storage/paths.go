package storage

import "path/filepath"

// filePair is the (segment, index) path pair for one table's primary or
// replica storage.
type filePair struct {
	seg string
	idx string
}

func keyspaceDir(root, keyspace string) string {
	return filepath.Join(root, keyspace)
}

func replicationDir(root, keyspace string) string {
	return filepath.Join(root, keyspace, "replication")
}

func tablePaths(root, keyspace, table string, isReplication bool) filePair {
	dir := keyspaceDir(root, keyspace)
	if isReplication {
		dir = replicationDir(root, keyspace)
	}
	return filePair{
		seg: filepath.Join(dir, table+".seg"),
		idx: filepath.Join(dir, table+".idx"),
	}
}

// fileKey identifies one (keyspace, table, replica-or-not) file pair for
// the purposes of the per-path writer mutex.
func fileKey(keyspace, table string, isReplication bool) string {
	if isReplication {
		return keyspace + "/replication/" + table
	}
	return keyspace + "/" + table
}
