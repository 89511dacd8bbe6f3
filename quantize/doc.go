/*
	Package quantize scans and rescales raw voxel streams of any supported element type
	into 8-bit or 12-bit data suitable for GPU textures, computing histograms along the way.

	All passes work on bounded memory: a Source is read in chunks of at most the in-core
	size, so arbitrarily large files can be processed.  Quantization takes two passes over
	the source, the first discovering the value range with Scan and the second rewriting
	each value, so sources must be restartable via Rewind.
*/
package quantize
