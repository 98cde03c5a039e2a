// Package workload provides the executors of the two built-in lanes:
// image editing (image_edit) and single-image mesh reconstruction
// (mesh_gen).
//
// The inference itself sits behind the [ImageModel] and [MeshModel]
// interfaces. Executors receive their model through a
// resource.Handle, which loads it once and can swap it under lock, and
// hold the matching resource permit for the whole hardware-touching
// section, including model state changes such as swapping the sampler.
// Input decoding and artifact writing happen outside the permit.
//
// [SimulatedImageModel] and [SimulatedMeshModel] stand in for real
// pipelines in tests and in the development daemon.
package workload
