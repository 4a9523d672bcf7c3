package bboltx

import "go.etcd.io/bbolt"

// CreateBucketIfNotExists creates nested buckets with names given by the
// elements of path.
func CreateBucketIfNotExists(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var (
		b   *bbolt.Bucket
		err error
	)

	for _, n := range path {
		b, err = p.CreateBucketIfNotExists(n)
		Must(err)

		p = b
	}

	return b
}

// Bucket gets nested buckets with names given by the elements of path.
//
// It returns nil if any of the nested buckets does not exist.
func Bucket(p BucketParent, path ...[]byte) (b *bbolt.Bucket) {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	for _, n := range path {
		b = p.Bucket(n)
		if b == nil {
			return nil
		}

		p = b
	}

	return b
}

// TryBucket gets nested buckets with names given by the elements of path.
//
// ok is false if any of the nested buckets does not exist.
func TryBucket(p BucketParent, path ...[]byte) (*bbolt.Bucket, bool) {
	b := Bucket(p, path...)
	return b, b != nil
}

// DeleteBucket removes the nested bucket named by the last element of path,
// if it exists.
func DeleteBucket(p BucketParent, path ...[]byte) {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	if len(path) > 1 {
		b := Bucket(p, path[:len(path)-1]...)
		if b == nil {
			return
		}
		p = b
	}

	k := path[len(path)-1]
	if p.Bucket(k) == nil {
		return
	}

	Must(p.DeleteBucket(k))
}

// Put writes a value to a bucket.
func Put(b *bbolt.Bucket, k, v []byte) {
	err := b.Put(k, v)
	Must(err)
}

// PutPath writes a value at the key given by the last element of path,
// creating intermediate buckets as necessary.
func PutPath(p BucketParent, v []byte, path ...[]byte) {
	if len(path) < 2 {
		panic("at least two path elements must be provided")
	}

	b := CreateBucketIfNotExists(p, path[:len(path)-1]...)
	Put(b, path[len(path)-1], v)
}

// GetPath reads the value at the key given by the last element of path.
//
// It returns nil if any of the intermediate buckets does not exist.
func GetPath(p BucketParent, path ...[]byte) []byte {
	if len(path) < 2 {
		panic("at least two path elements must be provided")
	}

	b := Bucket(p, path[:len(path)-1]...)
	if b == nil {
		return nil
	}

	return b.Get(path[len(path)-1])
}
