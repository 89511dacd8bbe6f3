/*
	Package gpumem pages dataset bricks between CPU memory and GPU textures under
	explicit memory budgets, and shares the other GPU resources a renderer needs:
	2D textures, transfer function textures, framebuffers and shader programs.

	A Manager owns a MemoryBudget with separate CPU and GPU byte counters.  Every
	tracked resource adds its size when created and subtracts it when destroyed, so
	after Close both counters must be zero.

	Brick volumes live in an arena of records addressed by VolumeHandle.  A request
	for a brick is served, in order, by

		an exact match (same dataset, brick, flags and context) whose user count is
		incremented,

		a best match under memory pressure: the least recently used unused record of
		the same texture shape, flags and context, whose texture is overwritten in place,

		a new texture, after evicting unused records if the budgets require it.

	If the context runs out of memory all unused records are freed and the
	allocation retried, then up to four records still in use.  If nothing is left
	to free, ErrCannotRenderBrick is returned.

	The Manager is not safe for concurrent use and must be driven from the thread
	owning its graphics contexts.
*/
package gpumem
